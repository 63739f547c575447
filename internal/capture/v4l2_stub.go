//go:build !gstreamer

package capture

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NewV4L2Camera is only available in builds tagged gstreamer.
func NewV4L2Camera(device string, width, height int, log logrus.FieldLogger) (MediaDevices, error) {
	return nil, fmt.Errorf("%w: built without gstreamer support (rebuild with -tags gstreamer)", ErrNoDevice)
}
