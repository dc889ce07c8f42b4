package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/config"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/hub"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/sensor"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fencetrack.yaml")
	tempConfig := `
server:
    address: localhost:0  # 0 lets OS choose free port
sensor:
    provider: route
    route:
        waypoints:
            - {lat: 50.8878, lon: 5.9683}
            - {lat: 50.8885, lon: 5.9690}
        speed_mps: 1.4
ui:
    static_dir: ""
catalog:
    path: ` + filepath.Join(dir, "missing.geojson") + `
log:
    server:
        path: ` + filepath.Join(dir, "server.log") + `
        level: debug
    requests:
        path: ` + filepath.Join(dir, "requests.log") + `
    events:
        path: ` + filepath.Join(dir, "events.log") + `
db:
    path: ` + filepath.Join(dir, "fencetrack.db") + `
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(tempConfig), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfgPath) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tracking:\n    boundary:\n        radius_km: -1\n"), 0o644))

	err := run(context.Background(), cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestTrackingConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tracking.Retry.MaxAttempts = 5
	cfg.Tracking.Retry.Backoff = config.Duration(time.Second)
	cfg.Camera.Follow.Zoom = 16
	b, err := geo.NewBoundary(geo.Point{Lat: 50.8878, Lon: 5.9683}, 0.6)
	require.NoError(t, err)

	tc := trackingConfig(cfg, b)
	assert.Equal(t, 5, tc.Retry.MaxAttempts)
	assert.Equal(t, time.Second, tc.Retry.Backoff)
	assert.Equal(t, 16.0, tc.FollowZoom)
	assert.Equal(t, cfg.Tracking.NearbyRadius.Meters(), tc.NearbyRadiusM)
	assert.Equal(t, 0.6, tc.Boundary.RadiusKm())
}

func TestPresentationConfig_NoticeOverrides(t *testing.T) {
	center := geo.Point{Lat: 50.8878, Lon: 5.9683}

	tests := []struct {
		name       string
		notice     config.NoticeConfig
		wantTitle  string
		wantButton string
	}{
		{"BuiltIn", config.NoticeConfig{}, presentation.DefaultTexts().Title, presentation.DefaultTexts().Button},
		{"Override", config.NoticeConfig{Title: "Come to Heerlen"}, "Come to Heerlen", presentation.DefaultTexts().Button},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Presentation.Notice = tt.notice

			pc := presentationConfig(cfg, center)
			assert.Equal(t, tt.wantTitle, pc.Texts.Title)
			assert.Equal(t, tt.wantButton, pc.Texts.Button)
			assert.Equal(t, center, pc.IntroPose.Center)
			assert.Equal(t, cfg.Camera.Intro.Zoom, pc.IntroPose.Zoom)
		})
	}
}

func TestRouteConfig(t *testing.T) {
	rc := config.RouteConfig{
		Waypoints: []config.LatLon{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}},
		Speed:     2,
		Tick:      config.Duration(time.Second),
		Loop:      true,
	}
	got := routeConfig(&rc)
	assert.Equal(t, []geo.Point{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}}, got.Waypoints)
	assert.Equal(t, 2.0, got.SpeedMps)
	assert.Equal(t, time.Second, got.Tick)
	assert.True(t, got.Loop)
}

type fakeSink struct {
	fixes  []model.Position
	errors []*sensor.Error
}

func (f *fakeSink) PushFix(pos model.Position)  { f.fixes = append(f.fixes, pos) }
func (f *fakeSink) PushError(err *sensor.Error) { f.errors = append(f.errors, err) }

type fakeUI struct {
	acked []string
	err   error
}

func (f *fakeUI) Notice() (presentation.Notice, bool)         { return presentation.Notice{}, false }
func (f *fakeUI) Notifications() []presentation.Notification { return nil }
func (f *fakeUI) Layers() *presentation.MapLayers            { return presentation.NewMapLayers() }
func (f *fakeUI) AcknowledgeNotice(id string) (*camera.Transition, error) {
	f.acked = append(f.acked, id)
	return nil, f.err
}

type fakeViewport struct{ poses []*model.Pose }

func (f *fakeViewport) Pose() model.Pose          { return model.Pose{} }
func (f *fakeViewport) IsMoving() bool            { return false }
func (f *fakeViewport) Interact(pose *model.Pose) { f.poses = append(f.poses, pose) }

func TestInboundHandler(t *testing.T) {
	clk := clock.NewFake(time.UnixMilli(1700000000000))
	sink := &fakeSink{}
	ui := &fakeUI{}
	vp := &fakeViewport{}
	handle := inboundHandler(sink, ui, vp, clk)

	msg := func(typ, data string) hub.Message {
		return hub.Message{Type: typ, Data: json.RawMessage(data)}
	}

	require.NoError(t, handle("c1", msg(inFix, `{"lat":50.888,"lon":5.968}`)))
	require.Len(t, sink.fixes, 1)
	assert.Equal(t, int64(1700000000000), sink.fixes[0].TimestampMs)

	require.NoError(t, handle("c1", msg(inSensorError, `{"code":1}`)))
	require.Len(t, sink.errors, 1)
	assert.Equal(t, sensor.PermissionDenied, sink.errors[0].Kind)

	require.NoError(t, handle("c1", msg(inAck, `{"id":"n1"}`)))
	assert.Equal(t, []string{"n1"}, ui.acked)

	require.NoError(t, handle("c1", msg(inInteraction, "")))
	require.Len(t, vp.poses, 1)
	assert.Nil(t, vp.poses[0])

	assert.Error(t, handle("c1", msg(inFix, `{"lat":100,"lon":5}`)))
	assert.Error(t, handle("c1", msg("teleport", `{}`)))

	ui.err = presentation.ErrNoNotice
	assert.ErrorIs(t, handle("c1", msg(inAck, "")), presentation.ErrNoNotice)
}

func TestInboundHandler_RouteProvider(t *testing.T) {
	handle := inboundHandler(nil, &fakeUI{}, &fakeViewport{}, clock.New())
	assert.ErrorIs(t, handle("c1", hub.Message{Type: inFix, Data: json.RawMessage(`{"lat":1,"lon":1}`)}), errNoPushSensor)
	assert.ErrorIs(t, handle("c1", hub.Message{Type: inSensorError, Data: json.RawMessage(`{"code":2}`)}), errNoPushSensor)
}

type recordingBroadcaster struct{ types []string }

func (r *recordingBroadcaster) Broadcast(typ string, data any) error {
	r.types = append(r.types, typ)
	return nil
}

func TestCameraRelay(t *testing.T) {
	out := &recordingBroadcaster{}
	vp := camera.NewSimViewport(model.Pose{}, animation.NewManualFrames(), clock.NewFake(time.Unix(0, 0)))
	cam := camera.NewChoreographer(vp)
	t.Cleanup(cam.Close)
	cam.AddObserver(cameraRelay{out: out})

	tr := cam.EaseTo("follow", model.Pose{Zoom: 17}, 0, camera.Supersede)
	<-tr.Done()
	assert.Contains(t, out.types, msgCamera)
}
