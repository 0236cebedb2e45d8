package api

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/internal/version"
	"github.com/sudomakeinstall/cardio/pkg/mpr"
	"github.com/sudomakeinstall/cardio/pkg/visualization"
)

// Largest image edge a view can be rendered at
const maxRenderSize = 4096

const (
	indexIdentifier = "index"
	viewIdentifier  = "view"
	labelIdentifier = "label"
)

func registerEndpoints(s *Server) {
	s.AddJSONHandler("/", http.MethodGet, rootRequest)
	s.AddJSONHandler("/api/volumes", http.MethodGet, volumesList)

	s.AddJSONHandler("/api/session", http.MethodGet, sessionGet)
	s.AddJSONHandler("/api/session/volume", http.MethodPut, sessionVolumePut)
	s.AddJSONHandler("/api/session/frame", http.MethodPut, sessionFramePut)
	s.AddJSONHandler("/api/session/reset", http.MethodPost, sessionResetPost)

	s.AddJSONHandler("/api/session/rotations", http.MethodPost, rotationsPost)
	s.AddJSONHandler("/api/session/rotations/reset", http.MethodPost, rotationsResetPost)
	s.AddJSONHandler("/api/session/rotations/{"+indexIdentifier+":[0-9]+}", http.MethodPut, rotationPut)
	s.AddJSONHandler("/api/session/rotations/{"+indexIdentifier+":[0-9]+}", http.MethodDelete, rotationDelete)
	s.AddJSONHandler("/api/session/convention", http.MethodPut, conventionPut)

	s.AddJSONHandler("/api/session/drag", http.MethodPost, dragPost)
	s.AddJSONHandler("/api/session/origin", http.MethodPut, originPut)
	s.AddJSONHandler("/api/session/window-level", http.MethodPut, windowLevelPut)
	s.AddJSONHandler("/api/window-level/presets", http.MethodGet, presetsList)

	s.AddJSONHandler("/api/session/views", http.MethodGet, viewsGet)
	s.AddStreamHandler("/api/session/views/{"+viewIdentifier+":[a-z]+}.png", http.MethodGet, viewPNG)

	s.AddJSONHandler("/api/session/save", http.MethodPost, savePost)
	s.AddJSONHandler("/api/session/load", http.MethodPost, loadPost)
	s.AddJSONHandler("/api/rotations/{"+labelIdentifier+"}", http.MethodGet, rotationsList)

	s.AddJSONHandler("/api/session/play", http.MethodPost, playPost)
	s.AddJSONHandler("/api/session/pause", http.MethodPost, pausePost)

	s.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.Router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.melody.HandleRequest(w, r); err != nil {
			s.log.Errorf("Websocket upgrade failed: %v", err)
		}
	}).Methods(http.MethodGet)
}

type versionResponse struct {
	Component string `json:"component"`
	Version   string `json:"version"`
}

func rootRequest(params HandlerParams) (interface{}, error) {
	return versionResponse{Component: "cardio", Version: version.Version}, nil
}

func volumesList(params HandlerParams) (interface{}, error) {
	return params.Session.Volumes(), nil
}

func sessionGet(params HandlerParams) (interface{}, error) {
	return params.Session.State(), nil
}

func sessionVolumePut(params HandlerParams) (interface{}, error) {
	var req struct {
		Label string `json:"label"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	return params.Session.SelectVolume(req.Label)
}

func sessionFramePut(params HandlerParams) (interface{}, error) {
	var req struct {
		Frame *int `json:"frame"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	if req.Frame == nil {
		return nil, MakeBadRequestError(errors.New("frame is required"))
	}
	return params.Session.SetFrame(*req.Frame)
}

func sessionResetPost(params HandlerParams) (interface{}, error) {
	return params.Session.ResetAll()
}

func rotationsPost(params HandlerParams) (interface{}, error) {
	var req struct {
		Axis string `json:"axis"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	return params.Session.AddRotation(req.Axis)
}

func rotationsResetPost(params HandlerParams) (interface{}, error) {
	return params.Session.ResetRotations()
}

func stepIndex(params HandlerParams) (int, error) {
	index, err := strconv.Atoi(params.PathParams[indexIdentifier])
	if err != nil {
		return -1, MakeBadRequestError(errors.Wrap(err, "invalid step index"))
	}
	return index, nil
}

func rotationPut(params HandlerParams) (interface{}, error) {
	index, err := stepIndex(params)
	if err != nil {
		return nil, err
	}
	var patch StepPatch
	if err := readJSON(params.Request, &patch); err != nil {
		return nil, err
	}
	return params.Session.UpdateRotation(index, patch)
}

func rotationDelete(params HandlerParams) (interface{}, error) {
	index, err := stepIndex(params)
	if err != nil {
		return nil, err
	}
	return params.Session.RemoveRotation(index)
}

func conventionPut(params HandlerParams) (interface{}, error) {
	var req struct {
		IndexOrder string `json:"index_order"`
		AngleUnits string `json:"angle_units"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	return params.Session.SetConvention(req.IndexOrder, req.AngleUnits)
}

func dragPost(params HandlerParams) (interface{}, error) {
	var req struct {
		View  string  `json:"view"`
		Delta float64 `json:"delta"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	return params.Session.Drag(req.View, req.Delta)
}

func originPut(params HandlerParams) (interface{}, error) {
	var req struct {
		Origin []float64 `json:"origin"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	if len(req.Origin) != 3 {
		return nil, MakeBadRequestError(errors.Errorf("origin must have 3 components, got %d", len(req.Origin)))
	}
	return params.Session.SetOrigin(r3.Vec{X: req.Origin[0], Y: req.Origin[1], Z: req.Origin[2]})
}

func windowLevelPut(params HandlerParams) (interface{}, error) {
	var req struct {
		Window   *float64 `json:"window"`
		Level    *float64 `json:"level"`
		Preset   string   `json:"preset"`
		PresetID int      `json:"preset_id"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}

	var wl mpr.WindowLevel
	switch {
	case req.Preset != "":
		p, ok := mpr.PresetByName(req.Preset)
		if !ok {
			return nil, MakeNotFoundError("preset " + req.Preset)
		}
		wl = p
	case req.PresetID != 0:
		p, ok := mpr.PresetByID(req.PresetID)
		if !ok {
			return nil, MakeNotFoundError("preset " + strconv.Itoa(req.PresetID))
		}
		wl = p
	case req.Window != nil && req.Level != nil:
		wl = mpr.WindowLevel{Window: *req.Window, Level: *req.Level}
	default:
		return nil, MakeBadRequestError(errors.New("give window and level, or a preset"))
	}
	return params.Session.SetWindowLevel(wl)
}

func presetsList(params HandlerParams) (interface{}, error) {
	return mpr.Presets, nil
}

func viewsGet(params HandlerParams) (interface{}, error) {
	return params.Session.Views()
}

func renderSize(params HandlerParams, name string) (int, error) {
	v, ok := params.PathParams[name]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxRenderSize {
		return 0, MakeBadRequestError(errors.Errorf("%s must be between 1 and %d, got %q", name, maxRenderSize, v))
	}
	return n, nil
}

// derivedSize scales edge by want/have, keeping the result renderable
func derivedSize(edge, want, have int) int {
	n := edge * want / have
	if n < 1 {
		return 1
	}
	if n > maxRenderSize {
		return maxRenderSize
	}
	return n
}

// viewPNG renders a view at the volume's own resolution and scales it to the
// requested size
func viewPNG(params HandlerParams, w http.ResponseWriter) error {
	width, err := renderSize(params, "width")
	if err != nil {
		return err
	}
	height, err := renderSize(params, "height")
	if err != nil {
		return err
	}

	img, err := params.Session.RenderView(params.PathParams[viewIdentifier], 0, 0)
	if err != nil {
		return err
	}
	if width > 0 || height > 0 {
		b := img.Bounds()
		if width == 0 {
			width = derivedSize(b.Dx(), height, b.Dy())
		}
		if height == 0 {
			height = derivedSize(b.Dy(), width, b.Dx())
		}
		img = visualization.Scale(img, width, height)
	}

	w.Header().Set("Content-Type", "image/png")
	return visualization.EncodePNG(w, img)
}

func savePost(params HandlerParams) (interface{}, error) {
	path, st, err := params.Session.Save()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": path, "state": st}, nil
}

func loadPost(params HandlerParams) (interface{}, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := readJSON(params.Request, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, MakeBadRequestError(errors.New("path is required"))
	}
	return params.Session.Load(req.Path)
}

func rotationsList(params HandlerParams) (interface{}, error) {
	label := params.PathParams[labelIdentifier]
	if err := models.ValidateLabel(label); err != nil {
		return nil, MakeBadRequestError(err)
	}
	return params.Session.ListRotations(label)
}

func playPost(params HandlerParams) (interface{}, error) {
	var req struct {
		BPM float64 `json:"bpm"`
	}
	if params.Request.ContentLength != 0 {
		if err := readJSON(params.Request, &req); err != nil {
			return nil, err
		}
	}
	return params.Session.Play(req.BPM)
}

func pausePost(params HandlerParams) (interface{}, error) {
	return params.Session.Pause()
}
