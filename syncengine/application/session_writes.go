package application

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Writes go straight to the document store. The session never patches its
// own state; the change comes back through the live listeners.

func (s *GallerySession) AddMedia(ctx context.Context, item gallery.MediaItem) (string, error) {
	galleryID := s.GalleryID()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.GalleryID = galleryID
	if item.UploadedAt.IsZero() {
		item.UploadedAt = time.Now().UTC()
	}
	doc, err := docstore.Encode(item)
	if err != nil {
		return "", err
	}
	id, err := s.store.WriteOne(ctx, gallery.MediaCollection(galleryID), doc)
	if err != nil {
		return "", fmt.Errorf("failed to add media: %w", err)
	}
	if s.notify != nil && len(item.Tags) > 0 {
		s.notify.NotifyTagged(galleryID, id, item.OwnerID, s.displayName(item.OwnerID), item.Tags)
	}
	logrus.Debugf("[GALLERY] Added media %s to %s", id, galleryID)
	return id, nil
}

func (s *GallerySession) AddComment(ctx context.Context, mediaID, authorID, text string) (string, error) {
	galleryID := s.GalleryID()
	c := gallery.Comment{
		ID:        uuid.NewString(),
		MediaID:   mediaID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	doc, err := docstore.Encode(c)
	if err != nil {
		return "", err
	}
	id, err := s.store.WriteOne(ctx, gallery.CommentCollection(galleryID), doc)
	if err != nil {
		return "", fmt.Errorf("failed to add comment: %w", err)
	}
	if s.notify != nil {
		if owner, ok := s.ownerOf(mediaID); ok {
			s.notify.NotifyComment(galleryID, mediaID, owner, authorID, s.displayName(authorID), text)
		}
	}
	return id, nil
}

// ToggleLike likes mediaID for userID, or removes the like if the session
// already shows one. It reports whether the media is liked afterwards.
func (s *GallerySession) ToggleLike(ctx context.Context, mediaID, userID string) (bool, error) {
	galleryID := s.GalleryID()
	likeID := mediaID + "_" + userID
	collection := gallery.LikeCollection(galleryID)

	if s.likedBy(mediaID, userID) {
		if err := s.store.UpdateOne(ctx, collection, likeID, map[string]any{"removed": true}); err != nil {
			return true, fmt.Errorf("failed to remove like: %w", err)
		}
		return false, nil
	}

	doc, err := docstore.Encode(gallery.Like{
		ID:        likeID,
		MediaID:   mediaID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	doc.Fields["removed"] = false
	if _, err := s.store.WriteOne(ctx, collection, doc); err != nil {
		return false, fmt.Errorf("failed to add like: %w", err)
	}
	if s.notify != nil {
		if owner, ok := s.ownerOf(mediaID); ok {
			s.notify.NotifyLike(galleryID, mediaID, owner, userID, s.displayName(userID))
		}
	}
	return true, nil
}

// TagUsers adds userIDs to the media tags and notifies the newly tagged.
func (s *GallerySession) TagUsers(ctx context.Context, mediaID, senderID string, userIDs []string) error {
	galleryID := s.GalleryID()
	item, ok := s.item(mediaID)
	if !ok {
		return fmt.Errorf("media %s: %w", mediaID, common.ErrNotFound)
	}

	existing := make(map[string]struct{}, len(item.Tags))
	for _, t := range item.Tags {
		existing[t] = struct{}{}
	}
	tags := append([]string(nil), item.Tags...)
	var added []string
	for _, id := range uniqueIDs(userIDs) {
		if _, ok := existing[id]; ok {
			continue
		}
		tags = append(tags, id)
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil
	}

	if err := s.store.UpdateOne(ctx, gallery.MediaCollection(galleryID), mediaID, map[string]any{"tags": tags}); err != nil {
		return fmt.Errorf("failed to tag users: %w", err)
	}
	if s.notify != nil {
		s.notify.NotifyTagged(galleryID, mediaID, senderID, s.displayName(senderID), added)
	}
	return nil
}

func (s *GallerySession) item(mediaID string) (gallery.MediaItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == mediaID {
			return it, true
		}
	}
	return gallery.MediaItem{}, false
}

func (s *GallerySession) ownerOf(mediaID string) (string, bool) {
	it, ok := s.item(mediaID)
	if !ok || it.OwnerID == "" {
		return "", false
	}
	return it.OwnerID, true
}

func (s *GallerySession) likedBy(mediaID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes[mediaID] {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

func (s *GallerySession) displayName(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p.DisplayName
	}
	return ""
}
