package payment

import "net/http"

// Landing pages shown to the customer after the gateway redirect. The Unity
// client scrapes the page title to detect completion, so the titles are part
// of the contract.
const successPage = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Оплата прошла успешно</title>
<style>
body{font-family:-apple-system,"Segoe UI",Roboto,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f4f6f8}
.card{background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:48px 40px;text-align:center;max-width:360px}
.mark{font-size:56px;color:#2e9e5b}
h1{font-size:22px;margin:16px 0 8px}
p{color:#667;margin:0}
</style>
</head>
<body>
<div class="card">
<div class="mark">&#10003;</div>
<h1>Оплата прошла успешно</h1>
<p>Можете вернуться в приложение.</p>
</div>
</body>
</html>
`

const failPage = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Оплата не прошла</title>
<style>
body{font-family:-apple-system,"Segoe UI",Roboto,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f4f6f8}
.card{background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:48px 40px;text-align:center;max-width:360px}
.mark{font-size:56px;color:#c74a4a}
h1{font-size:22px;margin:16px 0 8px}
p{color:#667;margin:0}
</style>
</head>
<body>
<div class="card">
<div class="mark">&#10007;</div>
<h1>Оплата не прошла</h1>
<p>Попробуйте ещё раз или обратитесь в поддержку.</p>
</div>
</body>
</html>
`

func renderPage(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
