package gallery

// Request payloads accepted by the REST layer.

type AddMediaRequest struct {
	OwnerID     string   `json:"owner_id" form:"owner_id"`
	URL         string   `json:"url" form:"url"`
	ThumbURL    string   `json:"thumb_url" form:"thumb_url"`
	ContentType string   `json:"content_type" form:"content_type"`
	Caption     string   `json:"caption" form:"caption"`
	Tags        []string `json:"tags" form:"tags"`
}

type AddCommentRequest struct {
	AuthorID string `json:"author_id" form:"author_id"`
	Text     string `json:"text" form:"text"`
}

type ToggleLikeRequest struct {
	UserID string `json:"user_id" form:"user_id"`
}

type TagUsersRequest struct {
	SenderID string   `json:"sender_id" form:"sender_id"`
	UserIDs  []string `json:"user_ids" form:"user_ids"`
}

type CreateNotificationRequest struct {
	ScopeID     string `json:"scope_id"`
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	SenderID    string `json:"sender_id"`
	MediaID     string `json:"media_id"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

type ClearCacheRequest struct {
	Keys []string `json:"keys"`
}
