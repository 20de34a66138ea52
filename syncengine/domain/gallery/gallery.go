package gallery

import "time"

// Status is the session state machine:
// idle -> loading -> ready <-> loading_more, with error reachable from
// loading and loading_more.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusLoadingMore Status = "loading_more"
	StatusError       Status = "error"
)

type MediaItem struct {
	ID          string    `json:"id"`
	GalleryID   string    `json:"gallery_id"`
	OwnerID     string    `json:"owner_id"`
	URL         string    `json:"url"`
	ThumbURL    string    `json:"thumb_url,omitempty"`
	ContentType string    `json:"content_type"`
	Caption     string    `json:"caption,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	MediaID   string    `json:"media_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Like struct {
	ID        string    `json:"id"`
	MediaID   string    `json:"media_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role,omitempty"`
}

// View is what a gallery session exposes to its consumers.
type View struct {
	GalleryID     string               `json:"gallery_id"`
	Status        Status               `json:"status"`
	Items         []MediaItem          `json:"items"`
	Comments      map[string][]Comment `json:"comments"`
	Likes         map[string][]Like    `json:"likes"`
	Profiles      map[string]Profile   `json:"profiles"`
	HasMore       bool                 `json:"has_more"`
	IsLoading     bool                 `json:"is_loading"`
	IsLoadingMore bool                 `json:"is_loading_more"`
	Error         string               `json:"error,omitempty"`
}

func MediaCollection(galleryID string) string { return "galleries/" + galleryID + "/media" }
func CommentCollection(galleryID string) string { return "galleries/" + galleryID + "/comments" }
func LikeCollection(galleryID string) string { return "galleries/" + galleryID + "/likes" }
func ProfileCollection(galleryID string) string { return "galleries/" + galleryID + "/profiles" }
