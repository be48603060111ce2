package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/room4-2/chatai/gateway"
)

var imageKeywords = []string{
	"generate image", "create image", "draw", "picture", "photo",
	"image bana", "tasveer", "picture bana", "draw kar", "image generate",
	"चित्र बना", "तस्वीर बना", "फोटो बना",
}

// IsImageRequest reports whether text asks for a generated image
func IsImageRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Notice is a user-visible failure notification
type Notice struct {
	Title       string
	Description string
}

// NoticeFor maps a turn error to the notice shown to the user
func NoticeFor(err error) Notice {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		return Notice{Title: "Rate Limited", Description: "Too many requests. Please try again later."}
	case errors.Is(err, gateway.ErrCreditsExhausted):
		return Notice{Title: "Credits Exhausted", Description: "Please add AI credits to continue."}
	case errors.Is(err, ErrStreamInterrupted):
		return Notice{Title: "Error", Description: "The response was interrupted. Partial reply kept."}
	case errors.Is(err, context.Canceled):
		return Notice{Title: "Cancelled", Description: "Request cancelled."}
	}
	return Notice{Title: "Error", Description: "Failed to send message. Please try again."}
}
