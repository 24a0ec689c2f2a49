// Package worldlabs converts generated 2D room images into explorable 3D
// scenes through the World Labs Marble API.
package worldlabs

import "fmt"

// Quality selects the Marble generation model.
type Quality string

const (
	QualityPlus Quality = "Marble 0.1-plus"
	QualityMini Quality = "Marble 0.1-mini"
)

// DefaultScenePrompt is the fixed fallback text prompt used when spatial
// prompt generation fails or no prompt is supplied.
const DefaultScenePrompt = "A cozy room interior, explorable, with depth"

// Default camera pose for the 3D viewer.
var (
	defaultCameraPosition = []float64{0, 1.5, 3}
	defaultCameraTarget   = []float64{0, 1, 0}
)

// ConvertRequest is the input to Convert. Images holds one or two PNG
// payloads, forward view first; with two, the service is told they are
// opposing views of the same volume.
type ConvertRequest struct {
	Images      [][]byte
	TextPrompt  string
	Quality     Quality
	DisplayName string
	Tags        []string
	Seed        *int32
}

// ViewerData is what the front-end 3D viewer needs to render a scene.
type ViewerData struct {
	SplatURL       string    `json:"splat_url"`
	ColliderURL    string    `json:"collider_url,omitempty"`
	PanoramaURL    string    `json:"panorama_url,omitempty"`
	CameraPosition []float64 `json:"camera_position"`
	CameraTarget   []float64 `json:"camera_target"`
}

// SceneResult is the complete output of a successful conversion.
type SceneResult struct {
	ViewerData     ViewerData `json:"viewer_data"`
	WorldID        string     `json:"world_id"`
	WorldMarbleURL string     `json:"world_marble_url,omitempty"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty"`
}

// ===== Error taxonomy =====

// ErrorKind distinguishes why a conversion failed. Callers need to tell
// "still running, gave up" apart from "service rejected it".
type ErrorKind int

const (
	// KindNetwork covers transport and HTTP-level failures.
	KindNetwork ErrorKind = iota
	// KindService covers failures reported by the service itself.
	KindService
	// KindTimeout means polling gave up while the operation was still running.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindService:
		return "service"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error wraps every failure surfaced by this package.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("worldlabs: %s error %s: %s", e.Kind, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("worldlabs: %s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("worldlabs: %s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ===== Wire models =====

type mediaAsset struct {
	MediaAssetID string `json:"media_asset_id"`
	FileName     string `json:"file_name,omitempty"`
}

type uploadInfo struct {
	UploadURL       string            `json:"upload_url"`
	UploadMethod    string            `json:"upload_method"`
	RequiredHeaders map[string]string `json:"required_headers"`
}

type prepareUploadResponse struct {
	MediaAsset mediaAsset `json:"media_asset"`
	UploadInfo uploadInfo `json:"upload_info"`
}

type imagePrompt struct {
	Source         string   `json:"source"`
	MediaAssetID   string   `json:"media_asset_id,omitempty"`
	AzimuthDegrees *float64 `json:"azimuth_degrees,omitempty"`
}

type worldPrompt struct {
	Type         string        `json:"type"`
	ImagePrompt  *imagePrompt  `json:"image_prompt,omitempty"`
	ImagePrompts []imagePrompt `json:"image_prompts,omitempty"`
	TextPrompt   string        `json:"text_prompt,omitempty"`
	Model        string        `json:"model,omitempty"`
}

type generateWorldRequest struct {
	DisplayName string      `json:"display_name"`
	WorldPrompt worldPrompt `json:"world_prompt"`
	Tags        []string    `json:"tags,omitempty"`
	Seed        *int32      `json:"seed,omitempty"`
}

type generateWorldResponse struct {
	OperationID string `json:"operation_id"`
}

type operationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type operationPayload struct {
	WorldID        string `json:"world_id"`
	WorldMarbleURL string `json:"world_marble_url,omitempty"`
}

type operationStatus struct {
	OperationID string            `json:"operation_id"`
	Done        bool              `json:"done"`
	Error       *operationError   `json:"error,omitempty"`
	Response    *operationPayload `json:"response,omitempty"`
}

type spzURLs struct {
	FullRes  string `json:"full_res,omitempty"`
	Splat500 string `json:"500k,omitempty"`
	Splat100 string `json:"100k,omitempty"`
}

// best returns the highest-resolution splat URL available.
func (s *spzURLs) best() string {
	if s == nil {
		return ""
	}
	switch {
	case s.FullRes != "":
		return s.FullRes
	case s.Splat500 != "":
		return s.Splat500
	default:
		return s.Splat100
	}
}

type splatAssets struct {
	SpzURLs *spzURLs `json:"spz_urls,omitempty"`
}

type meshAssets struct {
	ColliderMeshURL string `json:"collider_mesh_url,omitempty"`
}

type imageryAssets struct {
	PanoURL string `json:"pano_url,omitempty"`
}

type worldAssets struct {
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Splats       *splatAssets   `json:"splats,omitempty"`
	Mesh         *meshAssets    `json:"mesh,omitempty"`
	Imagery      *imageryAssets `json:"imagery,omitempty"`
}

type world struct {
	WorldID        string       `json:"world_id"`
	DisplayName    string       `json:"display_name,omitempty"`
	WorldMarbleURL string       `json:"world_marble_url,omitempty"`
	Assets         *worldAssets `json:"assets,omitempty"`
	Model          string       `json:"model,omitempty"`
}
