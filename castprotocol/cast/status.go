package cast

// Volume is the receiver or stream volume.
type Volume struct {
	Level        float64 `json:"level"`
	Muted        bool    `json:"muted"`
	ControlType  string  `json:"controlType,omitempty"`  // "attenuation", "fixed", "master"
	StepInterval float64 `json:"stepInterval,omitempty"` // suggested step for up/down controls
}

// Namespace is one namespace an application advertises.
type Namespace struct {
	Name string `json:"name"`
}

// Application is a running remote application instance.
type Application struct {
	AppID        string      `json:"appId"`
	DisplayName  string      `json:"displayName"`
	Namespaces   []Namespace `json:"namespaces"`
	SessionID    string      `json:"sessionId"`
	StatusText   string      `json:"statusText"`
	TransportID  string      `json:"transportId"`
	IsIdleScreen bool        `json:"isIdleScreen,omitempty"`
}

// HasNamespace reports whether the application advertises ns.
func (a *Application) HasNamespace(ns string) bool {
	for _, n := range a.Namespaces {
		if n.Name == ns {
			return true
		}
	}
	return false
}

// DeviceStatus is the aggregate receiver state. A new value is built from
// every RECEIVER_STATUS; values are never patched in place.
type DeviceStatus struct {
	Applications  []Application `json:"applications"`
	IsActiveInput bool          `json:"isActiveInput"`
	IsStandBy     bool          `json:"isStandBy"`
	Volume        Volume        `json:"volume"`
}

// Application returns the running application with appID, or nil.
func (s *DeviceStatus) Application(appID string) *Application {
	if s == nil {
		return nil
	}
	for i := range s.Applications {
		if s.Applications[i].AppID == appID {
			app := s.Applications[i]
			return &app
		}
	}
	return nil
}

// FirstApplication returns the first listed application, or nil.
func (s *DeviceStatus) FirstApplication() *Application {
	if s == nil || len(s.Applications) == 0 {
		return nil
	}
	app := s.Applications[0]
	return &app
}

// MediaStatus is the state of one media session.
type MediaStatus struct {
	MediaSessionID         int               `json:"mediaSessionId"`
	PlayerState            string            `json:"playerState"` // "IDLE", "PLAYING", "PAUSED", "BUFFERING", "LOADING"
	IdleReason             string            `json:"idleReason,omitempty"`
	CurrentTime            float64           `json:"currentTime"`
	PlaybackRate           float64           `json:"playbackRate"`
	SupportedMediaCommands int64             `json:"supportedMediaCommands"`
	Volume                 Volume            `json:"volume"`
	Media                  *MediaInformation `json:"media,omitempty"`
	RepeatMode             string            `json:"repeatMode,omitempty"`
}
