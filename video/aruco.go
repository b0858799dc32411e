package video

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"markertracker/calibrators"
	"markertracker/trackers"
)

// AnyMarker makes the estimator track the largest marker in view.
const AnyMarker = -1

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":         gocv.ArucoDict4x4_50,
	"4x4_100":        gocv.ArucoDict4x4_100,
	"4x4_250":        gocv.ArucoDict4x4_250,
	"4x4_1000":       gocv.ArucoDict4x4_1000,
	"5x5_50":         gocv.ArucoDict5x5_50,
	"5x5_100":        gocv.ArucoDict5x5_100,
	"5x5_250":        gocv.ArucoDict5x5_250,
	"5x5_1000":       gocv.ArucoDict5x5_1000,
	"6x6_50":         gocv.ArucoDict6x6_50,
	"6x6_100":        gocv.ArucoDict6x6_100,
	"6x6_250":        gocv.ArucoDict6x6_250,
	"6x6_1000":       gocv.ArucoDict6x6_1000,
	"7x7_50":         gocv.ArucoDict7x7_50,
	"7x7_100":        gocv.ArucoDict7x7_100,
	"7x7_250":        gocv.ArucoDict7x7_250,
	"7x7_1000":       gocv.ArucoDict7x7_1000,
	"aruco_original": gocv.ArucoDictArucoOriginal,
}

// DictionaryNames lists the accepted dictionary names.
func DictionaryNames() []string {
	names := make([]string, 0, len(dictionaries))
	for name := range dictionaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ArucoEstimator detects ArUco markers and solves the pose of the tracked one.
type ArucoEstimator struct {
	detector    gocv.ArucoDetector
	calibration *calibrators.CameraCalibration
	markerSize  float64
	markerID    int
}

// NewArucoEstimator builds a detector for the named predefined dictionary. markerSize is the
// printed side length and sets the unit of every reported translation.
func NewArucoEstimator(dictionary string, markerID int, markerSize float64, calibration *calibrators.CameraCalibration) (*ArucoEstimator, error) {
	dict, ok := dictionaries[strings.ToLower(dictionary)]
	if !ok {
		return nil, fmt.Errorf("unknown marker dictionary %q, expected one of %s", dictionary, strings.Join(DictionaryNames(), ", "))
	}
	if markerSize <= 0 {
		return nil, fmt.Errorf("marker size must be positive, got %f", markerSize)
	}
	if calibration == nil {
		return nil, fmt.Errorf("camera calibration is required")
	}
	params := gocv.NewArucoDetectorParameters()
	return &ArucoEstimator{
		detector:    gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(dict), params),
		calibration: calibration,
		markerSize:  markerSize,
		markerID:    markerID,
	}, nil
}

// DetectAndSolvePose implements trackers.PoseEstimator.
func (a *ArucoEstimator) DetectAndSolvePose(frame gocv.Mat) (trackers.MarkerPose, bool, error) {
	corners, ids, _ := a.detector.DetectMarkers(frame)
	best := -1
	bestArea := 0.0
	for i, id := range ids {
		if a.markerID != AnyMarker && id != a.markerID {
			continue
		}
		if len(corners[i]) != 4 {
			continue
		}
		if area := quadArea(toPoints(corners[i])); area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return trackers.MarkerPose{}, false, nil
	}

	pixels := toPoints(corners[best])
	pose, err := trackers.SolvePlanarPose(a.calibration.NormalizeAll(pixels), a.markerSize)
	if err != nil {
		return trackers.MarkerPose{}, false, fmt.Errorf("marker %d: %w", ids[best], err)
	}
	return trackers.MarkerPose{
		ID:                ids[best],
		Corners:           pixels,
		Rotation:          pose.Rotation,
		Translation:       pose.Translation,
		ReprojectionError: pose.RMS,
	}, true, nil
}

func (a *ArucoEstimator) Close() error {
	return a.detector.Close()
}

func toPoints(c []gocv.Point2f) [4]r2.Point {
	var out [4]r2.Point
	for i := 0; i < 4 && i < len(c); i++ {
		out[i] = r2.Point{X: float64(c[i].X), Y: float64(c[i].Y)}
	}
	return out
}

func quadArea(p [4]r2.Point) float64 {
	area := 0.0
	for i := range p {
		j := (i + 1) % 4
		area += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(area) / 2
}
