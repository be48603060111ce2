package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/room4-2/chatai/audio"
	"github.com/room4-2/chatai/audio/device"
	"github.com/room4-2/chatai/chat"
	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/realtime"
	"github.com/room4-2/chatai/speech"
)

const (
	cmdSend    = "send"
	cmdHelp    = "/help"
	cmdQuit    = "/quit"
	cmdClear   = "/clear"
	cmdCopy    = "/copy"
	cmdImage   = "/image"
	cmdVoice   = "/voice"
	cmdDictate = "/dictate"
	cmdSpeak   = "/speak"

	// about a minute of 24 kHz PCM16
	maxDictationBytes = audio.SampleRate * 2 * 60
)

var errNoReply = errors.New("no assistant reply yet")

// parseCommand splits an input line into a command and its argument. Plain
// text is a cmdSend with the trimmed text as argument.
func parseCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	if !strings.HasPrefix(line, "/") {
		return cmdSend, line
	}
	cmd, arg, _ = strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	if cmd == "/exit" {
		cmd = cmdQuit
	}
	return cmd, strings.TrimSpace(arg)
}

// noticeFor renders service failures the way chat turns do and anything
// else verbatim
func noticeFor(err error) chat.Notice {
	var se *gateway.StatusError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, chat.ErrStreamInterrupted) {
		return chat.NoticeFor(err)
	}
	return chat.Notice{Title: "Error", Description: err.Error()}
}

func (a *app) lastReply() (chat.Message, error) {
	msg, ok := a.conv.LastAssistant()
	if !ok || strings.TrimSpace(msg.Content) == "" {
		return chat.Message{}, errNoReply
	}
	return msg, nil
}

func (a *app) copyLast() error {
	msg, err := a.lastReply()
	if err != nil {
		return err
	}
	if err := clipboard.WriteAll(msg.Content); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	fmt.Println(dimStyle.Render("Copied to clipboard"))
	return nil
}

// waitEnter blocks until the user presses Enter, done closes or ctx ends
func (a *app) waitEnter(ctx context.Context, done <-chan struct{}) {
	select {
	case <-a.lines:
	case <-done:
	case <-ctx.Done():
	}
}

// voiceDialer dials the relay bridge or, without relay mode, the upstream
// directly with an ephemeral token
func (a *app) voiceDialer(ctx context.Context) (realtime.Dialer, error) {
	if a.cfg.Relay {
		header := http.Header{}
		if a.cfg.APIKey != "" {
			header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		}
		return realtime.DialWebSocket(a.cfg.RelayRealtimeURL(), header), nil
	}

	token, err := realtime.FetchEphemeralToken(ctx, a.gw, realtime.DefaultSessionFunction)
	if err != nil {
		return nil, err
	}
	return realtime.UpstreamDialer(a.cfg.RealtimeURL, a.cfg.RealtimeModel, token)
}

// voice runs a realtime session until Enter or until the session ends
func (a *app) voice(ctx context.Context) error {
	dial, err := a.voiceDialer(ctx)
	if err != nil {
		return err
	}
	speaker, err := device.NewSpeaker()
	if err != nil {
		return err
	}

	var transcript realtime.Transcript
	coord, err := realtime.NewCoordinator(realtime.Options{
		Dial:    dial,
		Capture: device.NewMicrophone(audio.FrameSize),
		Sink:    speaker,
		Voice:   a.cfg.Voice,
		OnStatus: func(s realtime.Status) {
			fmt.Println(dimStyle.Render("● " + string(s)))
		},
		OnEvent: func(ev *messages.ServerEvent) {
			changed := transcript.Apply(ev)
			if (changed && ev.Type == messages.TypeInputTranscript) || ev.Type == messages.TypeAudioTranscriptDone {
				printLastLine(transcript.Lines())
			}
		},
		OnError: func(err error) {
			fmt.Println(noticeStyle.Render("Voice error: ") + err.Error())
		},
	})
	if err != nil {
		return err
	}

	if err := coord.Connect(ctx); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render("Speak now. Press Enter to end the conversation."))
	a.waitEnter(ctx, coord.Done())

	err = coord.Disconnect()
	if lines := transcript.Lines(); len(lines) > 0 {
		fmt.Println(dimStyle.Render("--- transcript ---"))
		fmt.Println(transcript.String())
	}
	return err
}

func printLastLine(lines []realtime.Line) {
	if len(lines) == 0 {
		return
	}
	l := lines[len(lines)-1]
	style := aiStyle
	if l.Speaker == realtime.SpeakerUser {
		style = userStyle
	}
	fmt.Println(style.Render(l.Speaker+": ") + l.Text)
}

// dictate records until Enter, transcribes and sends the text as a turn
func (a *app) dictate(ctx context.Context) error {
	d := speech.NewDictation(device.NewMicrophone(audio.FrameSize), a.speech, maxDictationBytes)
	if err := d.Start(); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render("Recording... press Enter to stop."))
	a.waitEnter(ctx, nil)
	fmt.Println(dimStyle.Render(fmt.Sprintf("Recorded %.1fs, transcribing...", d.Recorded().Seconds())))

	text, err := d.Stop(ctx)
	if err != nil {
		return err
	}
	fmt.Println(userStyle.Render("You: ") + text)
	if err := a.send(ctx, text); err != nil {
		a.notify(chat.NoticeFor(err))
	}
	return nil
}

// speak reads the last reply aloud. The hosted function answers with MP3,
// which is saved to a file since the speaker only plays PCM WAV.
func (a *app) speak(ctx context.Context) error {
	msg, err := a.lastReply()
	if err != nil {
		return err
	}
	data, err := a.speech.Synthesize(ctx, msg.Content, a.cfg.Voice)
	if err != nil {
		return err
	}

	if audio.IsWAV(data) {
		speaker, err := device.NewSpeaker()
		if err != nil {
			return err
		}
		defer speaker.Close()
		return speaker.Play(ctx, data)
	}

	f, err := os.CreateTemp("", "chatai-*.mp3")
	if err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	fmt.Println(dimStyle.Render("Saved speech to " + f.Name()))
	return nil
}
