package worldlabs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Azimuth tags for dual-image submissions: the two images are opposing views
// of one volume.
const (
	azimuthForward  = 0.0
	azimuthBackward = 180.0
)

func ptr[T any](v T) *T { return &v }

// Convert uploads the request's image(s), submits a world generation, polls
// to completion and returns the resulting scene. All failures come back as
// *Error with a Kind the caller can branch on.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) (*SceneResult, error) {
	if len(req.Images) == 0 || len(req.Images) > 2 {
		return nil, &Error{
			Kind:    KindService,
			Message: fmt.Sprintf("conversion needs 1 or 2 images, got %d", len(req.Images)),
		}
	}

	assetIDs, err := c.uploadAll(ctx, req.Images)
	if err != nil {
		return nil, err
	}

	quality := req.Quality
	if quality == "" {
		quality = QualityMini
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = "Instaroom scene"
	}
	textPrompt := req.TextPrompt
	if textPrompt == "" {
		textPrompt = DefaultScenePrompt
	}

	operationID, err := c.generateWorld(ctx, generateWorldRequest{
		DisplayName: displayName,
		WorldPrompt: buildWorldPrompt(assetIDs, textPrompt, quality),
		Tags:        req.Tags,
		Seed:        req.Seed,
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("world generation submitted",
		zap.String("operation_id", operationID),
		zap.Int("images", len(assetIDs)))

	status, err := c.pollOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if status.Error != nil {
		return nil, &Error{
			Kind:    KindService,
			Code:    status.Error.Code,
			Message: status.Error.Message,
		}
	}
	if status.Response == nil || status.Response.WorldID == "" {
		return nil, &Error{Kind: KindService, Message: "operation completed without a world id"}
	}

	return c.fetchScene(ctx, status.Response.WorldID)
}

// uploadAll uploads the images in parallel, preserving order (forward first).
func (c *Client) uploadAll(ctx context.Context, images [][]byte) ([]string, error) {
	assetIDs := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			id, err := c.uploadImage(gctx, img, fmt.Sprintf("room_view_%d.png", i))
			if err != nil {
				return err
			}
			assetIDs[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var wlErr *Error
		if errors.As(err, &wlErr) {
			return nil, wlErr
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	return assetIDs, nil
}

// buildWorldPrompt shapes the prompt bundle. Two images are tagged with
// opposing azimuths so the service reconstructs them as one volume.
func buildWorldPrompt(assetIDs []string, textPrompt string, quality Quality) worldPrompt {
	if len(assetIDs) == 1 {
		return worldPrompt{
			Type: "image",
			ImagePrompt: &imagePrompt{
				Source:       "media_asset",
				MediaAssetID: assetIDs[0],
			},
			TextPrompt: textPrompt,
			Model:      string(quality),
		}
	}
	return worldPrompt{
		Type: "multi_image",
		ImagePrompts: []imagePrompt{
			{
				Source:         "media_asset",
				MediaAssetID:   assetIDs[0],
				AzimuthDegrees: ptr(azimuthForward),
			},
			{
				Source:         "media_asset",
				MediaAssetID:   assetIDs[1],
				AzimuthDegrees: ptr(azimuthBackward),
			},
		},
		TextPrompt: textPrompt,
		Model:      string(quality),
	}
}

// pollOperation polls at a fixed interval until the operation reports done or
// the poll timeout elapses. Timing out is a distinct error kind from a
// service-reported failure.
func (c *Client) pollOperation(ctx context.Context, operationID string) (operationStatus, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.getOperation(ctx, operationID)
		if err != nil {
			return operationStatus{}, err
		}
		if status.Done {
			return status, nil
		}
		if time.Now().After(deadline) {
			return operationStatus{}, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("operation %s still running after %s", operationID, c.pollTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return operationStatus{}, &Error{Kind: KindTimeout, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// fetchScene retrieves the completed world and selects its viewer assets.
// The splat URL is mandatory; collider mesh and panorama are optional.
func (c *Client) fetchScene(ctx context.Context, worldID string) (*SceneResult, error) {
	w, err := c.getWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}

	var splatURL, colliderURL, panoURL, thumbnailURL string
	if w.Assets != nil {
		thumbnailURL = w.Assets.ThumbnailURL
		if w.Assets.Splats != nil {
			splatURL = w.Assets.Splats.SpzURLs.best()
		}
		if w.Assets.Mesh != nil {
			colliderURL = w.Assets.Mesh.ColliderMeshURL
		}
		if w.Assets.Imagery != nil {
			panoURL = w.Assets.Imagery.PanoURL
		}
	}
	if splatURL == "" {
		return nil, &Error{
			Kind:    KindService,
			Message: fmt.Sprintf("world %s has no splat asset", worldID),
		}
	}

	return &SceneResult{
		ViewerData: ViewerData{
			SplatURL:       splatURL,
			ColliderURL:    colliderURL,
			PanoramaURL:    panoURL,
			CameraPosition: defaultCameraPosition,
			CameraTarget:   defaultCameraTarget,
		},
		WorldID:        w.WorldID,
		WorldMarbleURL: w.WorldMarbleURL,
		ThumbnailURL:   thumbnailURL,
	}, nil
}
