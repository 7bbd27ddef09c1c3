package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/galkyn/video-calling-app/internal/signaling"
)

// EngineFactory builds a fresh Engine for a negotiation with one peer.
type EngineFactory func(peerID string) (Engine, error)

// EngineEvents are the callbacks a concrete engine raises during
// negotiation. Both are invoked from pion goroutines.
type EngineEvents struct {
	// OnCandidate fires for each locally gathered ICE candidate.
	OnCandidate func(peerID string, c signaling.Candidate)
	// OnStateChange fires when the peer connection's state moves.
	OnStateChange func(peerID string, state webrtc.PeerConnectionState)
}

// NewPionFactory builds engines backed by pion PeerConnections. Each
// engine opens a "control" data channel so call setup negotiates a
// transport even before media tracks are attached.
func NewPionFactory(stunURLs []string, log *slog.Logger, events EngineEvents) EngineFactory {
	if log == nil {
		log = slog.Default()
	}
	se := webrtc.SettingEngine{
		LoggerFactory: slogLoggerFactory{log: log},
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var iceServers []webrtc.ICEServer
	if len(stunURLs) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stunURLs})
	}

	return func(peerID string) (Engine, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		if _, err := pc.CreateDataChannel("control", nil); err != nil {
			pc.Close()
			return nil, fmt.Errorf("create control channel: %w", err)
		}
		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil || events.OnCandidate == nil {
				return
			}
			events.OnCandidate(peerID, signaling.CandidateFromPion(c))
		})
		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			if events.OnStateChange != nil {
				events.OnStateChange(peerID, state)
			}
		})
		return &pionEngine{pc: pc}, nil
	}
}

type pionEngine struct {
	pc *webrtc.PeerConnection
}

func (e *pionEngine) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return signaling.SessionDescriptionFromPion(offer), nil
}

func (e *pionEngine) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return signaling.SessionDescriptionFromPion(answer), nil
}

func (e *pionEngine) SetRemoteDescription(d signaling.SessionDescription) error {
	pd, err := d.ToPion()
	if err != nil {
		return err
	}
	return e.pc.SetRemoteDescription(pd)
}

func (e *pionEngine) AddICECandidate(c signaling.Candidate) error {
	return e.pc.AddICECandidate(c.ToPion())
}

func (e *pionEngine) Close() error {
	return e.pc.Close()
}

// slogLoggerFactory routes pion's internal logging through slog so the
// client emits one coherent log stream.
type slogLoggerFactory struct {
	log *slog.Logger
}

func (f slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveledLogger{log: f.log.With("pion_scope", scope)}
}

type slogLeveledLogger struct {
	log *slog.Logger
}

func (l slogLeveledLogger) Trace(msg string) { l.log.Debug(msg) }
func (l slogLeveledLogger) Tracef(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
func (l slogLeveledLogger) Debug(msg string) { l.log.Debug(msg) }
func (l slogLeveledLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
func (l slogLeveledLogger) Info(msg string) { l.log.Info(msg) }
func (l slogLeveledLogger) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
func (l slogLeveledLogger) Warn(msg string) { l.log.Warn(msg) }
func (l slogLeveledLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
func (l slogLeveledLogger) Error(msg string) { l.log.Error(msg) }
func (l slogLeveledLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
