package actions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
)

func registerMedia(r *dispatch.Registry) {
	r.MustRegister("create_media_upload_url", createMediaUploadURL)
	r.MustRegister("get_media_download_url", getMediaDownloadURL)
	r.MustRegister("delete_media", deleteMedia)
}

func urlTTL(payload map[string]any) time.Duration {
	return time.Duration(optNumber(payload, "ttlSeconds", 0)) * time.Second
}

func createMediaUploadURL(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}

	key := optString(env.Payload, "key")
	if key == "" {
		key = wabaID + "/" + uuid.NewString()
	}

	url, err := d.Media().UploadURL(ctx, key, urlTTL(env.Payload))
	if err != nil {
		return nil, apierr.Upstream("presign upload", err)
	}
	return dispatch.OK("create_media_upload_url", map[string]any{
		"uploadUrl": url,
		"key":       key,
	}), nil
}

func getMediaDownloadURL(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	key, err := requireString(env.Payload, "key")
	if err != nil {
		return nil, err
	}

	url, err := d.Media().DownloadURL(ctx, key, urlTTL(env.Payload))
	if err != nil {
		return nil, apierr.Upstream("presign download", err)
	}
	return dispatch.OK("get_media_download_url", map[string]any{
		"downloadUrl": url,
		"key":         key,
	}), nil
}

func deleteMedia(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	key, err := requireString(env.Payload, "key")
	if err != nil {
		return nil, err
	}

	if err := d.Media().Delete(ctx, key); err != nil {
		return nil, apierr.Upstream("media delete", err)
	}
	return dispatch.OK("delete_media", map[string]any{"key": key}), nil
}
