//go:build gstreamer

package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// V4L2Camera opens a local webcam through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGBA) → appsink
//
// Every GetUserMedia call builds its own pipeline; stopping the returned
// stream's track tears it down.
type V4L2Camera struct {
	device string
	width  int
	height int
	log    logrus.FieldLogger
}

// NewV4L2Camera checks that GStreamer is usable and returns a camera for
// device (e.g. /dev/video0) producing width x height RGBA frames.
func NewV4L2Camera(device string, width, height int, log logrus.FieldLogger) (MediaDevices, error) {
	gst.Init(nil)
	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("%w: v4l2src unavailable: %v", ErrNoDevice, err)
	}
	elem.SetState(gst.StateNull)
	return &V4L2Camera{device: device, width: width, height: height, log: log}, nil
}

func (c *V4L2Camera) GetUserMedia(ctx context.Context, cons Constraints) (Stream, error) {
	if !cons.Video || cons.Audio {
		return nil, fmt.Errorf("%w: only video-only streams are supported", ErrNoDevice)
	}

	desc := fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=%d,height=%d ! appsink name=sink sync=false max-buffers=1 drop=true",
		c.device, c.width, c.height,
	)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	sinkElem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("%w: appsink missing: %v", ErrNoDevice, err)
	}

	s := &gstStream{
		pipeline: pipeline,
		width:    c.width,
		height:   c.height,
		log:      c.log,
	}
	s.track = &gstTrack{stream: s}

	sink := app.SinkFromElement(sinkElem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		// the device node exists but refused to open
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	c.log.WithField("device", c.device).Info("camera: v4l2 pipeline playing")
	return s, nil
}

type gstStream struct {
	pipeline *gst.Pipeline
	width    int
	height   int
	log      logrus.FieldLogger
	track    *gstTrack

	mu     sync.RWMutex
	latest *image.NRGBA
	frames uint64
}

func (s *gstStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) < s.width*s.height*4 {
		buffer.Unmap()
		s.log.WithField("bytes", len(data)).Debug("camera: short frame dropped")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer
	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, data[:len(img.Pix)])
	buffer.Unmap()

	s.mu.Lock()
	s.latest = img
	s.mu.Unlock()
	atomic.AddUint64(&s.frames, 1)
	return gst.FlowOK
}

func (s *gstStream) Tracks() []Track { return []Track{s.track} }

func (s *gstStream) VideoSize() (int, int) {
	if atomic.LoadUint64(&s.frames) == 0 {
		return 0, 0
	}
	return s.width, s.height
}

func (s *gstStream) DisplaySize() (int, int) { return s.width, s.height }

func (s *gstStream) Play(ctx context.Context) error {
	if !s.track.Live() {
		return ErrCameraOff
	}
	return s.pipeline.SetState(gst.StatePlaying)
}

func (s *gstStream) CurrentFrame() image.Image {
	if !s.track.Live() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	return s.latest
}

type gstTrack struct {
	stream  *gstStream
	stopped atomic.Bool
}

func (t *gstTrack) Kind() string { return "video" }

func (t *gstTrack) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	if err := t.stream.pipeline.SetState(gst.StateNull); err != nil {
		t.stream.log.WithError(err).Warn("camera: failed to stop v4l2 pipeline")
	}
}

func (t *gstTrack) Live() bool { return !t.stopped.Load() }
