package blog

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	youTubeLinePattern = regexp.MustCompile(`^https?://(?:www\.|m\.)?(?:youtube\.com/watch\?(?:\S*&)?v=|youtu\.be/)([A-Za-z0-9_-]{11})\S*$`)
	vimeoLinePattern   = regexp.MustCompile(`^https?://(?:www\.)?vimeo\.com/(\d+)/?$`)
	embedSrcPattern    = regexp.MustCompile(`^https://(?:www\.youtube-nocookie\.com/embed/[A-Za-z0-9_-]{11}|player\.vimeo\.com/video/\d+)$`)
)

const embedTemplate = `<div class="embed"><iframe src="%s" title="Embedded video" loading="lazy" allowfullscreen></iframe></div>`

// MarkdownRenderer converts post markdown into sanitized HTML.
type MarkdownRenderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewMarkdownRenderer builds a renderer with GFM, lazy images and video embeds.
func NewMarkdownRenderer() *MarkdownRenderer {
	markdown := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(lazyImageTransformer{}, 500)),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("loading").Matching(regexp.MustCompile(`^lazy$`)).OnElements("img", "iframe")
	policy.AllowAttrs("decoding").Matching(regexp.MustCompile(`^async$`)).OnElements("img")
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^embed$`)).OnElements("div")
	policy.AllowAttrs("src").Matching(embedSrcPattern).OnElements("iframe")
	policy.AllowAttrs("title", "allowfullscreen").OnElements("iframe")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	return &MarkdownRenderer{markdown: markdown, policy: policy}
}

// Render converts markdown source into sanitized HTML.
func (r *MarkdownRenderer) Render(source string) (string, error) {
	var buffer bytes.Buffer
	if err := r.markdown.Convert([]byte(embedMediaLines(source)), &buffer); err != nil {
		return "", fmt.Errorf("blog: render markdown: %w", err)
	}
	return r.policy.Sanitize(buffer.String()), nil
}

// embedMediaLines replaces lines holding only a video URL with an iframe
// block. Fenced code is left untouched.
func embedMediaLines(source string) string {
	lines := strings.Split(source, "\n")
	fence := ""
	for index, line := range lines {
		trimmed := strings.TrimSpace(line)
		if marker := fenceMarker(trimmed); marker != "" {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(trimmed, fence):
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}
		if src := embedSource(trimmed); src != "" {
			lines[index] = "\n" + fmt.Sprintf(embedTemplate, src) + "\n"
		}
	}
	return strings.Join(lines, "\n")
}

func fenceMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	default:
		return ""
	}
}

func embedSource(line string) string {
	if match := youTubeLinePattern.FindStringSubmatch(line); match != nil {
		return "https://www.youtube-nocookie.com/embed/" + match[1]
	}
	if match := vimeoLinePattern.FindStringSubmatch(line); match != nil {
		return "https://player.vimeo.com/video/" + match[1]
	}
	return ""
}

type lazyImageTransformer struct{}

func (lazyImageTransformer) Transform(document *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if image, ok := node.(*ast.Image); ok {
			image.SetAttributeString("loading", []byte("lazy"))
			image.SetAttributeString("decoding", []byte("async"))
		}
		return ast.WalkContinue, nil
	})
}
