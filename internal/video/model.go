// Package video manages AR video placements: geo-anchored video objects
// created by admins and mirrored to the realtime store for the AR client.
package video

import (
	"time"

	"github.com/google/uuid"
)

// Object is a video placement anchored at a geographic coordinate.
type Object struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	VideoURL    string    `json:"video_url"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by"`
	FirebaseKey string    `json:"firebase_key,omitempty"`
	Synced      bool      `json:"synced"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// unityObject is the shape the AR client reads from the realtime store.
// Field names are part of the client contract: x is latitude, y is longitude.
type unityObject struct {
	Name       string  `json:"name"`
	ObjectType string  `json:"objectType"`
	ObjectURL  string  `json:"objectURL"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

func toUnity(o Object) unityObject {
	return unityObject{
		Name:       o.Title,
		ObjectType: "video",
		ObjectURL:  o.VideoURL,
		X:          o.Latitude,
		Y:          o.Longitude,
	}
}
