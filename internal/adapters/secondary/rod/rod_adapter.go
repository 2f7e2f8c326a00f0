package rod

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
)

// Config drives the browser automation of one meeting platform.
type Config struct {
	ChromePath        string
	Headless          bool
	NameInputSelector string
	JoinButtonTexts   []string
	AdmittedSelector  string
	NameInputTimeout  time.Duration
	AdmissionTimeout  time.Duration
	ExitPollInterval  time.Duration
	SampleRate        int
	AudioQueueSize    int
}

// meeting is the browser state owned by one bot.
type meeting struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	tap         *audioTap
	stop        chan struct{}
	stopBinding func() error
}

type RodAdapter struct {
	cfg      Config
	logger   logging.Logger
	mu       sync.Mutex
	meetings map[string]*meeting
}

var _ ports.MeetingAutomator = (*RodAdapter)(nil)

func NewRodAutomator(cfg Config, logger logging.Logger) *RodAdapter {
	return &RodAdapter{
		cfg:      cfg,
		logger:   logger.With(logging.F("component", "rod")),
		meetings: make(map[string]*meeting),
	}
}

// JoinMeeting launches a dedicated browser, joins as a guest, waits to be
// admitted and starts capturing the meeting audio. Any failure tears the
// browser down before returning.
func (r *RodAdapter) JoinMeeting(ctx context.Context, session domain.BotSession) (ports.AudioTap, error) {
	log := r.logger.With(logging.F("bot_id", session.ID), logging.F("session_id", session.SessionID))
	log.Info("Starting browser automation", logging.F("meeting_url", session.MeetingURL))

	m, err := r.launch(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := r.join(ctx, m, session, log); err != nil {
		r.teardown(m, log)
		return nil, err
	}

	r.mu.Lock()
	r.meetings[session.ID] = m
	r.mu.Unlock()

	go r.monitorMeetingStatus(session.ID, m, log)

	log.Info("Admitted to meeting, capturing audio")
	return m.tap, nil
}

func (r *RodAdapter) launch(ctx context.Context, session domain.BotSession) (*meeting, error) {
	l := launcher.New().
		Context(ctx).
		Headless(r.cfg.Headless).
		Leakless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("use-fake-ui-for-media-stream").
		Set("use-fake-device-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-notifications").
		Set("user-agent", userAgent)
	if r.cfg.ChromePath != "" {
		l = l.Bin(r.cfg.ChromePath)
	}

	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("%w: launching browser: %v", domain.ErrSetupFailure, err)
	}

	// The browser outlives the join context; StopMeeting closes it.
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("%w: connecting to browser: %v", domain.ErrSetupFailure, err)
	}

	m := &meeting{launcher: l, browser: browser, stop: make(chan struct{})}

	if origin, err := meetingOrigin(session.MeetingURL); err == nil {
		err = proto.BrowserGrantPermissions{
			Origin: origin,
			Permissions: []proto.BrowserPermissionType{
				proto.BrowserPermissionTypeAudioCapture,
				proto.BrowserPermissionTypeVideoCapture,
			},
		}.Call(browser)
		if err != nil {
			r.teardown(m, r.logger)
			return nil, fmt.Errorf("%w: granting media permissions: %v", domain.ErrSetupFailure, err)
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		r.teardown(m, r.logger)
		return nil, fmt.Errorf("%w: opening page: %v", domain.ErrSetupFailure, err)
	}
	m.page = page
	return m, nil
}

func (r *RodAdapter) join(ctx context.Context, m *meeting, session domain.BotSession, log logging.Logger) error {
	page := m.page.Context(ctx)

	for _, js := range []string{stealth.JS, captureHookJS} {
		if _, err := page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("%w: installing page hooks: %v", domain.ErrSetupFailure, err)
		}
	}

	if err := page.Navigate(session.MeetingURL); err != nil {
		return fmt.Errorf("%w: navigating: %v", domain.ErrSetupFailure, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: waiting for page load: %v", domain.ErrSetupFailure, err)
	}

	nameInput, err := page.Timeout(r.cfg.NameInputTimeout).Element(r.cfg.NameInputSelector)
	if err != nil {
		return fmt.Errorf("%w: guest name input not found: %v", domain.ErrSetupFailure, err)
	}
	if err := nameInput.Input(session.DisplayName); err != nil {
		return fmt.Errorf("%w: typing display name: %v", domain.ErrSetupFailure, err)
	}

	// Ctrl+D mutes the microphone and Ctrl+E turns the camera off.
	if err := toggleMicAndCamera(page); err != nil {
		log.Warn("Could not toggle microphone and camera", logging.Err(err))
	}

	button, err := page.Timeout(r.cfg.NameInputTimeout).ElementR("button", joinButtonPattern(r.cfg.JoinButtonTexts))
	if err != nil {
		return fmt.Errorf("%w: join button not found: %v", domain.ErrSetupFailure, err)
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: clicking join: %v", domain.ErrSetupFailure, err)
	}
	log.Info("Asked to join, waiting for admission")

	if err := r.waitForAdmission(ctx, page); err != nil {
		return err
	}

	m.tap = newAudioTap(r.cfg.AudioQueueSize)
	stop, err := m.page.Expose(audioBinding, m.tap.handleBinding)
	if err != nil {
		return fmt.Errorf("%w: exposing audio binding: %v", domain.ErrSetupFailure, err)
	}
	m.stopBinding = stop

	res, err := page.Eval(startCaptureJS, r.cfg.SampleRate, audioBinding)
	if err != nil {
		return fmt.Errorf("%w: starting audio capture: %v", domain.ErrSetupFailure, err)
	}
	log.Debug("Audio capture started", logging.F("remote_tracks", res.Value.Int()))
	return nil
}

func toggleMicAndCamera(page *rod.Page) error {
	kb := page.Keyboard
	if err := kb.Press(input.ControlLeft); err != nil {
		return err
	}
	typeErr := kb.Type(input.KeyD, input.KeyE)
	if err := kb.Release(input.ControlLeft); err != nil {
		return err
	}
	return typeErr
}

func (r *RodAdapter) waitForAdmission(ctx context.Context, page *rod.Page) error {
	deadline := time.NewTimer(r.cfg.AdmissionTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		res, err := page.Eval(admissionStateJS, r.cfg.AdmittedSelector)
		if err == nil {
			switch res.Value.Str() {
			case "admitted":
				return nil
			case "rejected":
				return domain.ErrAdmissionRejected
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", domain.ErrAdmissionTimeout, r.cfg.AdmissionTimeout)
		case <-ticker.C:
		}
	}
}

func (r *RodAdapter) monitorMeetingStatus(botID string, m *meeting, log logging.Logger) {
	ticker := time.NewTicker(r.cfg.ExitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			exited := false
			err := rod.Try(func() {
				exited = m.page.MustEval(meetingExitedJS).Bool()
			})
			if err == nil && !exited {
				continue
			}
			if err != nil {
				// A dead page is as final as an ended meeting.
				log.Warn("Meeting page unreachable", logging.Err(err))
			}
			log.Info("Detected meeting exit", logging.F("bot_id", botID))
			m.tap.markExited()
			return
		}
	}
}

// StopMeeting closes the bot's browser. Unknown ids are a no-op.
func (r *RodAdapter) StopMeeting(_ context.Context, botID string) error {
	r.mu.Lock()
	m, ok := r.meetings[botID]
	delete(r.meetings, botID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	close(m.stop)
	return r.teardown(m, r.logger.With(logging.F("bot_id", botID)))
}

func (r *RodAdapter) teardown(m *meeting, log logging.Logger) error {
	var errs []error
	if m.stopBinding != nil {
		if err := m.stopBinding(); err != nil {
			log.Debug("Removing audio binding", logging.Err(err))
		}
	}
	if m.tap != nil {
		m.tap.close()
		if n := m.tap.dropped.Load(); n > 0 {
			log.Info("Audio chunks dropped in browser tap", logging.F("count", n))
		}
	}
	if err := m.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing browser: %w", err))
	}
	m.launcher.Kill()
	m.launcher.Cleanup()
	return errors.Join(errs...)
}

func (r *RodAdapter) GetSnapshot(_ context.Context, botID string) ([]byte, error) {
	r.mu.Lock()
	m, ok := r.meetings[botID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no page for bot %s: %w", botID, domain.ErrNotFound)
	}
	return m.page.Screenshot(true, nil)
}

// joinButtonPattern builds the JS regex matching any of the button texts.
func joinButtonPattern(texts []string) string {
	quoted := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	return "/" + strings.Join(quoted, "|") + "/"
}

func meetingOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("meeting url %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
