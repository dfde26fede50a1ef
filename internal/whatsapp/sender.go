package whatsapp

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// SendText delivers a plain text message through the connection's client.
// Implements the dispatch engine's sender contract.
func (s *Service) SendText(ctx context.Context, conn *domain.Whatsapp, chatID, text string) error {
	cli, err := s.clientFor(conn)
	if err != nil {
		return err
	}
	dest, err := waTypes.ParseJID(chatID)
	if err != nil {
		return errors.Wrapf(err, "whatsapp: invalid chat id %q", chatID)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := cli.SendMessage(ctx, dest, msg); err != nil {
		return errors.Wrap(err, "whatsapp: send text")
	}
	zap.L().Debug("whatsapp: text sent",
		zap.Int64("connection_id", conn.ID),
		zap.String("chat", chatID))
	return nil
}

// SendMedia uploads the attachment and delivers it as an image, video, audio
// or document message depending on its mime type.
func (s *Service) SendMedia(ctx context.Context, conn *domain.Whatsapp, chatID string, media domain.Media, caption string) error {
	cli, err := s.clientFor(conn)
	if err != nil {
		return err
	}
	dest, err := waTypes.ParseJID(chatID)
	if err != nil {
		return errors.Wrapf(err, "whatsapp: invalid chat id %q", chatID)
	}

	data, err := os.ReadFile(media.Path)
	if err != nil {
		return errors.Wrapf(err, "whatsapp: read media %s", media.Path)
	}

	up, err := cli.Upload(ctx, data, uploadTypeFor(media.Mime))
	if err != nil {
		return errors.Wrap(err, "whatsapp: upload media")
	}

	msg := buildMediaMessage(media, caption, up, uint64(len(data)))
	if _, err := cli.SendMessage(ctx, dest, msg); err != nil {
		return errors.Wrap(err, "whatsapp: send media")
	}
	zap.L().Debug("whatsapp: media sent",
		zap.Int64("connection_id", conn.ID),
		zap.String("chat", chatID),
		zap.String("mime", media.Mime))
	return nil
}

func uploadTypeFor(mime string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func buildMediaMessage(media domain.Media, caption string, up whatsmeow.UploadResponse, size uint64) *waE2E.Message {
	switch {
	case strings.HasPrefix(media.Mime, "image/"):
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.Mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	case strings.HasPrefix(media.Mime, "video/"):
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.Mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	case strings.HasPrefix(media.Mime, "audio/"):
		// PTT renders as a voice note; the caption travels as a separate text
		// message upstream.
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.Mime),
			PTT:           proto.Bool(true),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(media.Name),
			FileName:      proto.String(media.Name),
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.Mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	}
}
