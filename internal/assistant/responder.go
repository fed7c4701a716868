package assistant

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

const maxMessageLength = 2000

// Source identifies which responder produced a reply.
type Source string

const (
	SourceCanned Source = "canned"
	SourceModel  Source = "model"
)

var (
	// ErrEmptyMessage indicates that the visitor sent only whitespace.
	ErrEmptyMessage = errors.New("assistant: message is empty")
	// ErrMessageTooLong indicates that the visitor message exceeds the accepted length.
	ErrMessageTooLong = errors.New("assistant: message too long")
)

// Reply is the assistant answer returned to the visitor.
type Reply struct {
	Text   string `json:"reply"`
	Source Source `json:"source"`
}

// Responder answers visitor chat messages.
type Responder interface {
	Reply(ctx context.Context, message string) (Reply, error)
}

func normalizeMessage(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

type cannedRule struct {
	keywords []string
	reply    string
}

var defaultRules = []cannedRule{
	{
		keywords: []string{"price", "prices", "pricing", "cost", "rate", "rates", "quote"},
		reply:    "Pricing depends on scope. The pricing section lists the standard packages, and the contact form is the fastest way to get a quote.",
	},
	{
		keywords: []string{"hire", "available", "availability", "freelance", "project"},
		reply:    "I am taking on new projects. Send a short description through the contact form and I will reply within two business days.",
	},
	{
		keywords: []string{"contact", "email", "reach"},
		reply:    "The contact form at the bottom of the page goes straight to my inbox.",
	},
	{
		keywords: []string{"stack", "technology", "tech", "language"},
		reply:    "Most of my work is in Go on the backend with a lightweight web frontend. The projects section has the details for each build.",
	},
	{
		keywords: []string{"blog", "article", "post", "write"},
		reply:    "New articles land in the blog section. Each post has a comment thread if you want to discuss it.",
	},
	{
		keywords: []string{"hello", "hi", "hey"},
		reply:    "Hello! Ask me about projects, pricing, or availability.",
	},
}

const fallbackReply = "I can answer questions about projects, pricing, and availability. For anything else, the contact form is the best place to reach me."

// CannedResponder answers from a fixed keyword table.
type CannedResponder struct {
	rules []cannedRule
}

func NewCannedResponder() *CannedResponder {
	return &CannedResponder{rules: defaultRules}
}

func (r *CannedResponder) Reply(_ context.Context, message string) (Reply, error) {
	normalized, err := normalizeMessage(message)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: r.match(normalized), Source: SourceCanned}, nil
}

func (r *CannedResponder) match(message string) string {
	words := strings.FieldsFunc(strings.ToLower(message), func(character rune) bool {
		return !(character >= 'a' && character <= 'z')
	})
	present := make(map[string]struct{}, len(words))
	for _, word := range words {
		present[word] = struct{}{}
	}
	for _, rule := range r.rules {
		for _, keyword := range rule.keywords {
			if _, ok := present[keyword]; ok {
				return rule.reply
			}
		}
	}
	return fallbackReply
}
