package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheMichaelB/taskcrypt/internal/crypto"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

const fallbackFileName = "file"

// Attachments lists the files of a task with decrypted names.
func (s *Service) Attachments(ctx context.Context, taskID string) ([]models.Attachment, error) {
	query := s.pageQuery()
	query.Set("opt_fields", strings.Join(attachmentFields, ","))

	var attachments []models.Attachment
	if err := s.transport.GetAll(ctx, taskPath(taskID)+"/attachments", query, &attachments); err != nil {
		return nil, wrap("list attachments", taskID, err)
	}

	err := s.fanOut(ctx, len(attachments), func(i int) {
		attachments[i].Name = s.crypto.DecryptIfEnvelope(attachments[i].Name)
	})
	if err != nil {
		return nil, wrap("list attachments", taskID, err)
	}

	return attachments, nil
}

// UploadAttachment attaches a file to a task. With a master password the
// name and the wrapped content are encrypted separately; without one the
// file goes up as is.
func (s *Service) UploadAttachment(ctx context.Context, taskID, filename, mime string, data []byte) (*models.Attachment, error) {
	file, err := s.crypto.EncryptFile(data, filename, mime)
	if err != nil {
		return nil, wrap("upload attachment", taskID, err)
	}

	var att models.Attachment
	upload := transport.UploadFile{
		Field:       "file",
		Name:        file.Name,
		ContentType: file.Mime,
		Content:     file.Content,
	}
	if err := s.transport.Upload(ctx, taskPath(taskID)+"/attachments", upload, &att); err != nil {
		return nil, wrap("upload attachment", taskID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"task_id":   taskID,
		"size":      len(data),
		"encrypted": file.Encrypted,
	}).Info("Uploaded attachment")

	att.Name = filename
	return &att, nil
}

// DownloadAttachment fetches an attachment and decrypts it. The boolean is
// false when the content is returned raw: no password, not our format, or
// a payload that fails to decrypt or unwrap.
func (s *Service) DownloadAttachment(ctx context.Context, att models.Attachment) (*crypto.BinaryPayload, bool, error) {
	if att.DownloadURL == "" {
		return nil, false, wrap("download attachment", "", fmt.Errorf("%w: attachment has no download url", ErrInvalidInput))
	}

	content, err := s.transport.Download(ctx, att.DownloadURL)
	if err != nil {
		return nil, false, wrap("download attachment", "", err)
	}

	payload, err := s.crypto.DecryptFile(content)
	if err == nil {
		if payload.Name == "" {
			payload.Name = s.crypto.DecryptIfEnvelope(att.Name)
		}
		return payload, true, nil
	}

	if !errors.Is(err, crypto.ErrNotEncrypted) {
		s.logger.WithError(&models.DecryptError{
			Field:  "attachment",
			ID:     att.GID,
			Reason: "returning raw content",
			Err:    err,
		}).Warn("Attachment could not be decrypted")
	}

	name := att.Name
	if name == "" {
		name = fallbackFileName
	}
	return &crypto.BinaryPayload{
		Name: name,
		Mime: crypto.DefaultMimeType,
		Data: content,
	}, false, nil
}
