package config

const (
	defaultDataDir                 = "~/.local/share/turnstile/data"
	defaultLogDir                  = "~/.local/share/turnstile/logs"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultMode                    = ModeCheckin
	defaultFrameSkip               = 3
	defaultMinDetectionGapMillis   = 200
	defaultFrameTimeoutMillis      = 500
	defaultCaptureJPEGQuality      = 85
	defaultEventBuffer             = 64
	defaultFaceEngineURL           = "http://127.0.0.1:8765"
	defaultFaceEngineTimeout       = 10
	defaultStaffThreshold          = 0.55
	defaultRecheckThreshold        = 0.6
	defaultUnknownThreshold        = 0.5
	defaultCoveredFaceThreshold    = 0.3
	defaultDuplicateSimilarity     = 0.7
	defaultDedupWindowSeconds      = 300
	defaultTrackTimeoutSeconds     = 2
	defaultLeaveTimeoutSeconds     = 2
	defaultUnknownRecaptureSeconds = 2
	defaultConsecutiveStaffFrames  = 2
	defaultDisplayHoldSeconds      = 3
	defaultExpectedArrival         = "09:00"
	defaultLateWindowEnd           = "09:20"
	defaultDebounceSeconds         = 30
	defaultRecheckWindowMinutes    = 5
	defaultMotionIntervalMillis    = 30
	defaultMotionRecaptureMillis   = 200
	defaultMotionDiffThreshold     = 25
	defaultMotionMinAreaFraction   = 0.01
	defaultMotionMaxAreaFraction   = 0.5
	defaultMotionMinWidth          = 40
	defaultMotionMinHeight         = 60
	defaultMotionOverlapIOU        = 0.3
	defaultMotionLearningRate      = 0.05
	defaultCameraDevice            = "/dev/video0"
	defaultWebBind                 = "127.0.0.1:8642"
	defaultWebTokenTTLHours        = 720
	defaultWebRequestTimeout       = 30
	defaultNotifyRequestTimeout    = 10
	defaultAuthIssuer              = "turnstile"
	defaultPurgeProcessedAfterDays = 90
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Engine: Engine{
			Mode:                  defaultMode,
			FrameSkip:             defaultFrameSkip,
			MinDetectionGapMillis: defaultMinDetectionGapMillis,
			FrameTimeoutMillis:    defaultFrameTimeoutMillis,
			CaptureJPEGQuality:    defaultCaptureJPEGQuality,
			EventBuffer:           defaultEventBuffer,
		},
		Recognition: Recognition{
			FaceEngineURL:        defaultFaceEngineURL,
			RequestTimeout:       defaultFaceEngineTimeout,
			StaffThreshold:       defaultStaffThreshold,
			RecheckThreshold:     defaultRecheckThreshold,
			UnknownThreshold:     defaultUnknownThreshold,
			CoveredFaceThreshold: defaultCoveredFaceThreshold,
			DuplicateSimilarity:  defaultDuplicateSimilarity,
			DedupWindowSeconds:   defaultDedupWindowSeconds,
		},
		Tracking: Tracking{
			TrackTimeoutSeconds:     defaultTrackTimeoutSeconds,
			LeaveTimeoutSeconds:     defaultLeaveTimeoutSeconds,
			UnknownRecaptureSeconds: defaultUnknownRecaptureSeconds,
			ConsecutiveStaffFrames:  defaultConsecutiveStaffFrames,
			DisplayHoldSeconds:      defaultDisplayHoldSeconds,
		},
		Attendance: Attendance{
			ExpectedArrival:      defaultExpectedArrival,
			LateWindowEnd:        defaultLateWindowEnd,
			DebounceSeconds:      defaultDebounceSeconds,
			RecheckWindowMinutes: defaultRecheckWindowMinutes,
		},
		Motion: Motion{
			Enabled:                 true,
			IntervalMillis:          defaultMotionIntervalMillis,
			RecaptureIntervalMillis: defaultMotionRecaptureMillis,
			DiffThreshold:           defaultMotionDiffThreshold,
			MinAreaFraction:         defaultMotionMinAreaFraction,
			MaxAreaFraction:         defaultMotionMaxAreaFraction,
			MinWidth:                defaultMotionMinWidth,
			MinHeight:               defaultMotionMinHeight,
			OverlapIOU:              defaultMotionOverlapIOU,
			BackgroundLearningRate:  defaultMotionLearningRate,
		},
		Camera: Camera{
			Device:         defaultCameraDevice,
			MonitorHotplug: true,
		},
		Web: Web{
			Bind:           defaultWebBind,
			AuthIssuer:     defaultAuthIssuer,
			TokenTTLHours:  defaultWebTokenTTLHours,
			RequestTimeout: defaultWebRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			CheckIns:       true,
			CheckOuts:      true,
			Unknowns:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Maintenance: Maintenance{
			PurgeProcessedAfterDays: defaultPurgeProcessedAfterDays,
		},
	}
}
