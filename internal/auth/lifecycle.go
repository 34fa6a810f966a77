package auth

import (
	"context"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/models"
	"socialhub/internal/notify"
	"socialhub/internal/repository"
	"socialhub/internal/storage"
)

// MaxCoverImages bounds a single cover image upload.
const MaxCoverImages = 2

var imageTypes = map[string]bool{
	"image/jpg":  true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// CoverImage is one uploaded cover image.
type CoverImage struct {
	OriginalName string
	ContentType  string
	Body         io.Reader
}

// AssetPath is the storage namespace of an account.
func AssetPath(id primitive.ObjectID) string {
	return "users/" + id.Hex()
}

// FreezeAccount soft-deletes target, or the actor's own account when target is
// nil. Only admins may name a target.
func (m *Manager) FreezeAccount(ctx context.Context, actor *models.Account, target *primitive.ObjectID) (err error) {
	defer func() { m.observe("freeze_account", err) }()

	if target != nil && !actor.Role.Elevated() {
		return apperr.Forbidden("not authorized account")
	}
	id := actor.ID
	if target != nil {
		id = *target
	}

	now := m.now()
	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":       id,
		"freezedAt": bson.M{"$exists": false},
	}, bson.M{
		"$set": bson.M{
			"freezedAt":            now,
			"freezedBy":            actor.ID,
			"changeCredentialTime": now,
		},
		"$unset": bson.M{"restoredAt": 1, "restoredBy": 1},
	})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return apperr.NotFound("Fail to freeze account")
	}
	m.logger.Info("account frozen", zap.String("account_id", id.Hex()), zap.String("actor_id", actor.ID.Hex()))
	return nil
}

// RestoreAccount lifts an admin freeze. Accounts frozen by their owner stay frozen.
func (m *Manager) RestoreAccount(ctx context.Context, actor *models.Account, target primitive.ObjectID) (err error) {
	defer func() { m.observe("restore_account", err) }()

	if !actor.Role.Elevated() {
		return apperr.Forbidden("not authorized account")
	}
	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":       target,
		"freezedAt": bson.M{"$exists": true},
		"freezedBy": bson.M{"$ne": target},
	}, bson.M{
		"$set":   bson.M{"restoredAt": m.now(), "restoredBy": actor.ID},
		"$unset": bson.M{"freezedAt": 1, "freezedBy": 1},
	})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return apperr.NotFound("Fail to restore account")
	}
	m.logger.Info("account restored", zap.String("account_id", target.Hex()), zap.String("actor_id", actor.ID.Hex()))
	return nil
}

// HardDelete removes a frozen account and purges its stored assets.
func (m *Manager) HardDelete(ctx context.Context, target primitive.ObjectID) (err error) {
	defer func() { m.observe("hard_delete", err) }()

	n, err := m.accounts.DeleteOne(ctx, bson.M{
		"_id":       target,
		"freezedAt": bson.M{"$exists": true},
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("Fail to hardDelete account")
	}
	if err := m.storage.DeleteByPrefix(ctx, AssetPath(target)); err != nil {
		m.logger.Error("purge account assets", zap.String("account_id", target.Hex()), zap.Error(err))
	}
	m.logger.Info("account deleted", zap.String("account_id", target.Hex()))
	return nil
}

// BasicInfo holds the optional profile fields of UpdateBasicInfo.
type BasicInfo struct {
	FirstName *string
	LastName  *string
	Username  *string
	Phone     *string
	Address   *string
	Gender    *models.Gender
}

// UpdateBasicInfo patches the profile fields that are set.
func (m *Manager) UpdateBasicInfo(ctx context.Context, sess *Session, in BasicInfo) (acc *models.Account, err error) {
	defer func() { m.observe("update_basic_info", err) }()

	set := bson.M{}
	if in.Username != nil {
		var split models.Account
		split.SetUsername(*in.Username)
		set["firstName"] = split.FirstName
		set["lastName"] = split.LastName
	}
	if in.FirstName != nil {
		set["firstName"] = *in.FirstName
	}
	if in.LastName != nil {
		set["lastName"] = *in.LastName
	}
	if in.Phone != nil {
		set["phone"] = *in.Phone
	}
	if in.Address != nil {
		set["address"] = *in.Address
	}
	if in.Gender != nil {
		set["gender"] = *in.Gender
	}
	if len(set) == 0 {
		return nil, apperr.BadRequest("In-Valid Data")
	}

	acc, err = m.accounts.FindByIDAndUpdate(ctx, sess.Account.ID, bson.M{"$set": set})
	if isMissing(err) {
		return nil, apperr.NotFound("user not found")
	}
	return acc, err
}

// ProfileImage issues a presigned upload link for a new profile image and
// points the account at it, keeping the previous key until the upload lands.
func (m *Manager) ProfileImage(ctx context.Context, sess *Session, originalName, contentType string) (link storage.Presigned, err error) {
	defer func() { m.observe("profile_image", err) }()

	acc := sess.Account
	link, err = m.storage.PresignUpload(ctx, storage.Upload{
		Path:         AssetPath(acc.ID),
		OriginalName: originalName,
		ContentType:  contentType,
	})
	if err != nil {
		return storage.Presigned{}, apperr.BadRequest("failed to create Presigned url").Wrap(err)
	}

	update := bson.M{"$set": bson.M{"profileImage": link.Key}}
	if acc.ProfileImage != "" {
		update["$set"].(bson.M)["tempProfileImage"] = acc.ProfileImage
	} else {
		update["$unset"] = bson.M{"tempProfileImage": 1}
	}
	if _, err = m.accounts.FindByIDAndUpdate(ctx, acc.ID, update); err != nil {
		return storage.Presigned{}, apperr.BadRequest("Fail to update profile image").Wrap(err)
	}

	if m.uploadDelay > 0 {
		id, oldKey := acc.ID, acc.ProfileImage
		time.AfterFunc(m.uploadDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := m.ConfirmProfileImage(ctx, id, link.Key, oldKey); err != nil {
				m.logger.Error("confirm profile image", zap.String("account_id", id.Hex()), zap.Error(err))
			}
		})
	}
	return link, nil
}

// ConfirmProfileImage settles a presigned upload: a landed upload drops the
// previous image, a missing one rolls the account back to it.
func (m *Manager) ConfirmProfileImage(ctx context.Context, id primitive.ObjectID, key, oldKey string) error {
	landed, err := m.storage.Exists(ctx, key)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": id, "profileImage": key}
	if landed {
		if _, err := m.accounts.UpdateOne(ctx, filter, bson.M{"$unset": bson.M{"tempProfileImage": 1}}); err != nil {
			return err
		}
		if oldKey != "" {
			return m.storage.Delete(ctx, oldKey)
		}
		return nil
	}

	rollback := bson.M{"$unset": bson.M{"tempProfileImage": 1}}
	if oldKey != "" {
		rollback["$set"] = bson.M{"profileImage": oldKey}
	} else {
		rollback["$unset"] = bson.M{"tempProfileImage": 1, "profileImage": 1}
	}
	_, err = m.accounts.UpdateOne(ctx, filter, rollback)
	return err
}

// ProfileCoverImage stores images under the account's cover path and replaces
// its cover images. Previous images are removed once the account points at
// the new ones.
func (m *Manager) ProfileCoverImage(ctx context.Context, sess *Session, images []CoverImage) (keys []string, err error) {
	defer func() { m.observe("profile_cover_image", err) }()

	if len(images) == 0 || len(images) > MaxCoverImages {
		return nil, apperr.BadRequest("between 1 and 2 images are required")
	}
	for _, img := range images {
		if !imageTypes[img.ContentType] {
			return nil, apperr.BadRequest("In-valid file format")
		}
	}

	id := sess.Account.ID
	for _, img := range images {
		key, err := m.storage.Put(ctx, storage.Upload{
			Path:         AssetPath(id) + "/cover",
			OriginalName: img.OriginalName,
			ContentType:  img.ContentType,
		}, img.Body)
		if err != nil {
			m.discard(ctx, id, keys)
			return nil, apperr.BadRequest("Fail to upload images").Wrap(err)
		}
		keys = append(keys, key)
	}

	prev, err := m.accounts.FindByIDAndUpdate(ctx, id, bson.M{"$set": bson.M{"coverImages": keys}}, repository.Options{ReturnBefore: true})
	if err != nil {
		m.discard(ctx, id, keys)
		if isMissing(err) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	m.discard(ctx, id, prev.CoverImages)
	return keys, nil
}

// discard removes stored assets of id. Failures are logged only.
func (m *Manager) discard(ctx context.Context, id primitive.ObjectID, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := m.storage.Delete(ctx, keys...); err != nil {
		m.logger.Warn("delete account assets", zap.String("account_id", id.Hex()), zap.Strings("keys", keys), zap.Error(err))
	}
}

// SendEmailWithTags publishes one custom email per recipient.
func (m *Manager) SendEmailWithTags(ctx context.Context, to []string, subject, message string, tags []string) (err error) {
	defer func() { m.observe("send_email", err) }()

	html, err := notify.RenderCustom(m.app, subject, message, tags)
	if err != nil {
		return err
	}
	for _, addr := range to {
		m.notifier.Publish(ctx, notify.Event{Name: notify.SendCustomEmail, To: addr, Subject: subject, HTML: html})
	}
	return nil
}
