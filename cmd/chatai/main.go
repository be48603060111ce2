// Command chatai is a terminal client for the chat relay: streamed text chat,
// image generation, realtime voice, dictation and read-aloud.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/room4-2/chatai/chat"
	"github.com/room4-2/chatai/config"
	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/speech"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	aiStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	noticeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("245")).Padding(0, 2)
)

const helpText = `/image <prompt>  generate an image
/voice           talk in realtime (Enter to end)
/dictate         record a message (Enter to stop)
/speak           read the last reply aloud
/copy            copy the last reply
/clear           start over
/quit            exit`

type app struct {
	cfg    *config.ClientConfig
	gw     *gateway.Client
	chat   *chat.Client
	speech *speech.Client
	conv   *chat.Conversation
	lines  <-chan string
}

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gw, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.FunctionsURL,
		APIKey:  cfg.APIKey,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	// keep library logs out of the conversation
	log.SetOutput(os.Stderr)
	log.SetPrefix(dimStyle.Render("chatai "))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:    cfg,
		gw:     gw,
		chat:   chat.NewClient(gw, chat.Options{}),
		speech: speech.NewClient(gw),
		conv:   chat.NewConversation(),
		lines:  readLines(os.Stdin),
	}

	fmt.Println(helpStyle.Render(helpText))
	a.run(ctx)
}

// readLines feeds stdin lines to a channel so commands can wait for Enter
// while also watching their own completion
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (a *app) run(ctx context.Context) {
	for {
		fmt.Print(userStyle.Render("You: "))
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok = <-a.lines:
			if !ok {
				return
			}
		}

		cmd, arg := parseCommand(line)
		switch cmd {
		case "":
			continue
		case cmdQuit:
			return
		case cmdHelp:
			fmt.Println(helpStyle.Render(helpText))
		case cmdClear:
			a.conv.Clear()
			fmt.Println(dimStyle.Render("Conversation cleared"))
		case cmdCopy:
			a.report(a.copyLast())
		case cmdImage:
			a.report(a.image(ctx, arg))
		case cmdVoice:
			a.report(a.voice(ctx))
		case cmdDictate:
			a.report(a.dictate(ctx))
		case cmdSpeak:
			a.report(a.speak(ctx))
		case cmdSend:
			if err := a.send(ctx, arg); err != nil {
				a.notify(chat.NoticeFor(err))
			}
		default:
			fmt.Println(noticeStyle.Render("Unknown command " + cmd + ", try /help"))
		}
	}
}

// send streams one turn, printing deltas as they arrive
func (a *app) send(ctx context.Context, text string) error {
	fmt.Print(aiStyle.Render("AI: "))
	msg, err := a.chat.Send(ctx, a.conv, text, func(delta, _ string) {
		fmt.Print(delta)
	})
	if msg.ImageURL != "" {
		fmt.Print(msg.Content)
		fmt.Print("\n" + dimStyle.Render(msg.ImageURL))
	}
	fmt.Println()
	return err
}

func (a *app) image(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("usage: /image <prompt>")
	}
	fmt.Println(dimStyle.Render("Generating image..."))
	a.conv.AddUser(prompt)
	res, err := a.chat.GenerateImage(ctx, prompt, true)
	if err != nil {
		return err
	}
	if err := a.conv.AddAssistant(res.Text, res.ImageURL); err != nil {
		return err
	}
	fmt.Println(aiStyle.Render("AI: ") + res.Text)
	fmt.Println(dimStyle.Render(res.ImageURL))
	return nil
}

// report renders a failed command as a notice
func (a *app) report(err error) {
	if err != nil {
		a.notify(noticeFor(err))
	}
}

func (a *app) notify(n chat.Notice) {
	fmt.Println(noticeStyle.Render(n.Title+": ") + n.Description)
}
