package models

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
)

var (
	OverlayCamera = resource.NewModel("viam", "marker-pose-tracker", "overlay-camera")
)

func init() {
	resource.RegisterComponent(camera.API, OverlayCamera,
		resource.Registration[camera.Camera, *OverlayCameraConfig]{
			Constructor: newOverlayCamera,
		},
	)
}

type OverlayCameraConfig struct {
	CameraName      string  `json:"camera_name"`
	TrackerName     string  `json:"tracker_name,omitempty"`    // marker-tracker service providing the alignment dot
	CrosshairSize   int     `json:"crosshair_size"`            // Length of crosshair lines from center
	CrosshairThick  int     `json:"crosshair_thick"`           // Thickness of crosshair lines
	CrosshairColor  string  `json:"crosshair_color"`           // Color: "red", "green", "blue", "white", "black"
	CrosshairCircle bool    `json:"crosshair_circle"`          // Add a circle at the center
	DotColor        string  `json:"dot_color"`                 // Alignment dot color
	DotRadius       int     `json:"dot_radius"`                // Alignment dot radius in pixels
	PixelsPerUnit   float64 `json:"pixels_per_unit"`           // Dot offset per unit of world X/Y
	MaxPoseAgeMs    float64 `json:"max_pose_age_ms,omitempty"` // Older poses are not drawn
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit dependencies based on the config.
func (cfg *OverlayCameraConfig) Validate(path string) ([]string, []string, error) {
	if cfg.CameraName == "" {
		return nil, nil, errors.New("camera_name is required")
	}
	if cfg.CrosshairSize == 0 {
		cfg.CrosshairSize = 100
	}
	if cfg.CrosshairThick == 0 {
		cfg.CrosshairThick = 4
	}
	if cfg.CrosshairColor == "" {
		cfg.CrosshairColor = "red"
	}
	if cfg.DotColor == "" {
		cfg.DotColor = "green"
	}
	if cfg.DotRadius == 0 {
		cfg.DotRadius = 8
	}
	if cfg.PixelsPerUnit == 0 {
		cfg.PixelsPerUnit = 1
	}
	if cfg.MaxPoseAgeMs == 0 {
		cfg.MaxPoseAgeMs = 1000
	}
	if cfg.CrosshairSize < 0 || cfg.CrosshairThick < 0 || cfg.DotRadius < 0 || cfg.MaxPoseAgeMs < 0 {
		return nil, nil, errors.New("crosshair and dot sizes must not be negative")
	}
	deps := []string{cfg.CameraName}
	if cfg.TrackerName != "" {
		deps = append(deps, cfg.TrackerName)
	}
	return deps, nil, nil
}

type overlayStyle struct {
	crosshairSize   int
	crosshairThick  int
	crosshairColor  color.Color
	crosshairCircle bool
	dotRadius       int
	dotColor        color.Color
}

func styleFromConfig(cfg *OverlayCameraConfig) overlayStyle {
	return overlayStyle{
		crosshairSize:   cfg.CrosshairSize,
		crosshairThick:  cfg.CrosshairThick,
		crosshairColor:  parseColor(cfg.CrosshairColor),
		crosshairCircle: cfg.CrosshairCircle,
		dotRadius:       cfg.DotRadius,
		dotColor:        parseColor(cfg.DotColor),
	}
}

type overlayCamera struct {
	resource.AlwaysRebuild

	name          resource.Name
	logger        logging.Logger
	cfg           *OverlayCameraConfig
	underlyingCam camera.Camera
	tracker       resource.Resource
	style         overlayStyle
}

func newOverlayCamera(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*OverlayCameraConfig](rawConf)
	if err != nil {
		return nil, err
	}

	cam, err := camera.FromDependencies(deps, conf.CameraName)
	if err != nil {
		return nil, err
	}

	var tracker resource.Resource
	if conf.TrackerName != "" {
		tracker, err = genericservice.FromDependencies(deps, conf.TrackerName)
		if err != nil {
			return nil, err
		}
	}

	return &overlayCamera{
		name:          rawConf.ResourceName(),
		logger:        logger,
		cfg:           conf,
		underlyingCam: cam,
		tracker:       tracker,
		style:         styleFromConfig(conf),
	}, nil
}

func (s *overlayCamera) Name() resource.Name {
	return s.name
}

func (s *overlayCamera) Close(context.Context) error {
	return nil
}

func (s *overlayCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

// alignmentDot asks the tracker for its latest pose and maps world X/Y to a pixel offset from
// the image center. ok is false when there is no tracker or no recent pose.
func (s *overlayCamera) alignmentDot(ctx context.Context) (image.Point, bool) {
	if s.tracker == nil {
		return image.Point{}, false
	}
	resp, err := s.tracker.DoCommand(ctx, map[string]interface{}{"command": "get-latest-pose"})
	if err != nil {
		s.logger.Debugf("No pose from tracker: %v", err)
		return image.Point{}, false
	}
	return dotOffset(resp, s.cfg.PixelsPerUnit, s.cfg.MaxPoseAgeMs)
}

// dotOffset reads a get-latest-pose response. Image rows grow downward so world +Y moves the dot up.
func dotOffset(resp map[string]interface{}, pixelsPerUnit, maxAgeMs float64) (image.Point, bool) {
	if age, ok := resp["age_ms"].(float64); ok && maxAgeMs > 0 && age > maxAgeMs {
		return image.Point{}, false
	}
	position, ok := resp["position"].(map[string]interface{})
	if !ok {
		return image.Point{}, false
	}
	x, okX := position["x"].(float64)
	y, okY := position["y"].(float64)
	if !okX || !okY || math.IsNaN(x) || math.IsNaN(y) {
		return image.Point{}, false
	}
	return image.Point{
		X: int(math.Round(x * pixelsPerUnit)),
		Y: int(math.Round(-y * pixelsPerUnit)),
	}, true
}

func (s *overlayCamera) overlay(ctx context.Context, img image.Image) image.Image {
	dot, ok := s.alignmentDot(ctx)
	if !ok {
		return drawOverlay(img, s.style, nil)
	}
	return drawOverlay(img, s.style, &dot)
}

// drawOverlay draws a crosshair at the center of the image and, when dot is set, a filled dot
// offset from the center.
func drawOverlay(img image.Image, style overlayStyle, dot *image.Point) image.Image {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	center := image.Point{X: bounds.Min.X + bounds.Dx()/2, Y: bounds.Min.Y + bounds.Dy()/2}
	set := func(x, y int, c color.Color) {
		if (image.Point{X: x, Y: y}).In(bounds) {
			rgba.Set(x, y, c)
		}
	}

	size := style.crosshairSize
	half := style.crosshairThick / 2
	for d := -size; d <= size; d++ {
		for w := -half; w <= half; w++ {
			set(center.X+d, center.Y+w, style.crosshairColor)
			set(center.X+w, center.Y+d, style.crosshairColor)
		}
	}

	if style.crosshairCircle {
		radius := 5
		for angle := 0.0; angle < 360.0; angle += 1.0 {
			rad := angle * math.Pi / 180.0
			set(center.X+int(float64(radius)*math.Cos(rad)), center.Y+int(float64(radius)*math.Sin(rad)), style.crosshairColor)
		}
	}

	if dot != nil {
		p := center.Add(*dot)
		r := style.dotRadius
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if dx*dx+dy*dy <= r*r {
					set(p.X+dx, p.Y+dy, style.dotColor)
				}
			}
		}
	}
	return rgba
}

// parseColor converts color string to color.Color
func parseColor(colorName string) color.Color {
	switch colorName {
	case "red":
		return color.RGBA{R: 255, G: 0, B: 0, A: 255}
	case "green":
		return color.RGBA{R: 0, G: 255, B: 0, A: 255}
	case "blue":
		return color.RGBA{R: 0, G: 0, B: 255, A: 255}
	case "white":
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	case "black":
		return color.RGBA{R: 0, G: 0, B: 0, A: 255}
	case "yellow":
		return color.RGBA{R: 255, G: 255, B: 0, A: 255}
	case "cyan":
		return color.RGBA{R: 0, G: 255, B: 255, A: 255}
	case "magenta":
		return color.RGBA{R: 255, G: 0, B: 255, A: 255}
	default:
		return color.RGBA{R: 255, G: 0, B: 0, A: 255}
	}
}

func (s *overlayCamera) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (s *overlayCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	data, meta, err := s.underlyingCam.Image(ctx, mimeType, extra)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	img, err := rimage.DecodeImage(ctx, data, meta.MimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	out, err := rimage.EncodeImage(ctx, s.overlay(ctx, img), meta.MimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	return out, meta, nil
}

func (s *overlayCamera) Images(ctx context.Context, mimeTypes []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	imgs, meta, err := s.underlyingCam.Images(ctx, mimeTypes, extra)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	dot, hasDot := s.alignmentDot(ctx)
	result := make([]camera.NamedImage, len(imgs))
	for i, namedImg := range imgs {
		img, err := namedImg.Image(ctx)
		if err != nil {
			return nil, resource.ResponseMetadata{}, err
		}
		var overlaid image.Image
		if hasDot {
			overlaid = drawOverlay(img, s.style, &dot)
		} else {
			overlaid = drawOverlay(img, s.style, nil)
		}
		result[i], err = camera.NamedImageFromImage(overlaid, namedImg.SourceName, namedImg.MimeType())
		if err != nil {
			return nil, resource.ResponseMetadata{}, err
		}
	}
	return result, meta, nil
}

func (s *overlayCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, errors.New("next point cloud not implemented")
}

func (s *overlayCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return s.underlyingCam.Properties(ctx)
}
