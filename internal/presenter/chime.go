package presenter

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	logx "dayplan/pkg/logx"
)

const (
	chimeSampleRate = 44100
	chimeFade       = 5 * time.Millisecond
)

type ChimeConfig struct {
	FrequencyHz int
	// Duration of one beep. The 30m alert beeps once, 15m twice, start three times.
	Duration time.Duration
	Volume   float64
}

func (c ChimeConfig) withDefaults() ChimeConfig {
	if c.FrequencyHz <= 0 {
		c.FrequencyHz = 880
	}
	if c.Duration <= 0 {
		c.Duration = 400 * time.Millisecond
	}
	if c.Volume <= 0 || c.Volume > 1 {
		c.Volume = 0.3
	}
	return c
}

// Chime plays a short sine tone on the default audio device.
type Chime struct {
	cfg  ChimeConfig
	log  logx.Logger
	play func(ctx context.Context, pcm []byte) error

	mu sync.Mutex // one tone at a time
}

func NewChime(cfg ChimeConfig, log logx.Logger) *Chime {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Chime{cfg: cfg.withDefaults(), log: log.With(logx.String("comp", "presenter.chime")), play: playPCM}
}

func (c *Chime) Present(ctx context.Context, _ calendar.Event, kind alerts.Kind, _ string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pcm := c.tone(beeps(kind))
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.play(ctx, pcm)
}

func beeps(kind alerts.Kind) int {
	switch kind {
	case alerts.KindThirtyBefore:
		return 1
	case alerts.KindFifteenBefore:
		return 2
	default:
		return 3
	}
}

// tone renders n beeps separated by half a beep of silence as signed
// 16-bit little-endian mono PCM.
func (c *Chime) tone(n int) []byte {
	beep := int(c.cfg.Duration.Seconds() * chimeSampleRate)
	gap := beep / 2
	fade := int(chimeFade.Seconds() * chimeSampleRate)
	amp := c.cfg.Volume * math.MaxInt16
	step := 2 * math.Pi * float64(c.cfg.FrequencyHz) / chimeSampleRate

	var buf bytes.Buffer
	buf.Grow(2 * (n*beep + (n-1)*gap))
	for b := 0; b < n; b++ {
		if b > 0 {
			buf.Write(make([]byte, 2*gap))
		}
		for i := 0; i < beep; i++ {
			env := 1.0
			if i < fade {
				env = float64(i) / float64(fade)
			} else if beep-i <= fade {
				env = float64(beep-i-1) / float64(fade)
			}
			v := int16(amp * env * math.Sin(step*float64(i)))
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	return buf.Bytes()
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func audioContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		c, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   chimeSampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = c
	})
	return otoCtx, otoErr
}

func playPCM(ctx context.Context, pcm []byte) error {
	ac, err := audioContext()
	if err != nil {
		return err
	}
	p := ac.NewPlayer(bytes.NewReader(pcm))
	defer p.Close()
	p.Play()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
