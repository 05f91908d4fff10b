package chat

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maumtalk/counseling-server/internal/domain"
)

// ApologyContent is the canned reply used when nothing usable can be
// recovered from the model output.
const ApologyContent = "죄송합니다. 다시 한 번 말씀해 주시겠어요?"

// Reply is a parsed model response. Parse always produces a valid Reply:
// there is no error channel at this boundary, only increasingly degraded
// fallbacks, because a counseling exchange must never abort on odd output.
type Reply struct {
	Content  string
	Phase    domain.CounselingPhase
	Title    string
	Fallback bool
}

// Parser extracts content/phase/title triples from raw model output. The
// prompt format changed over the service's life, so two generations of
// output are accepted: a JSON object and a labeled-section plain-text form.
type Parser struct {
	titleMaxLength int
	logger         *slog.Logger
}

// NewParser creates a parser. titleMaxLength caps extracted titles, in runes.
func NewParser(titleMaxLength int, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{titleMaxLength: titleMaxLength, logger: logger}
}

var (
	codeFenceOpenRe  = regexp.MustCompile("(?m)^```[a-zA-Z]*[ \t]*$")
	labeledContentRe = regexp.MustCompile(`(?s)\[응답 내용\]\s*(.*?)\s*(?:\[현재 단계\]|\[세션 제목\]|$)`)
	labeledPhaseRe   = regexp.MustCompile(`\[현재 단계\]\s*\n?\s*([A-Z_]+)`)
	labeledTitleRe   = regexp.MustCompile(`\[세션 제목\]\s*\n?\s*(.+)`)
	braceFragmentRe  = regexp.MustCompile(`(?s)\{.*?\}`)
	bracketFragRe    = regexp.MustCompile(`\[.*?\]`)
)

// jsonReply covers both field-name generations of the JSON output format.
type jsonReply struct {
	Content      string `json:"content"`
	Phase        string `json:"phase"`
	CurrentPhase string `json:"currentPhase"`
	Title        string `json:"title"`
	SessionTitle string `json:"sessionTitle"`
}

// Parse turns raw model output into a Reply. It never fails: malformed
// output degrades through the labeled-text and bracket-stripping fallbacks
// down to a canned apology.
func (p *Parser) Parse(raw string, expectTitle bool) Reply {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		p.logger.Error("blank model output")
		return Reply{Content: ApologyContent, Phase: domain.InitialPhase, Fallback: true}
	}

	if reply, ok := p.parseJSON(trimmed, expectTitle); ok {
		return reply
	}
	if reply, ok := p.parseLabeled(trimmed, expectTitle); ok {
		return reply
	}
	return p.parseFallback(trimmed)
}

func (p *Parser) parseJSON(raw string, expectTitle bool) (Reply, bool) {
	cleaned := strings.TrimSpace(codeFenceOpenRe.ReplaceAllString(raw, ""))
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	var parsed jsonReply
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Reply{}, false
	}
	if parsed.Content == "" {
		return Reply{}, false
	}

	reply := Reply{
		Content: unescapeLiterals(parsed.Content),
		Phase:   p.resolvePhase(firstNonEmpty(parsed.Phase, parsed.CurrentPhase)),
	}
	if expectTitle {
		reply.Title = p.truncateTitle(firstNonEmpty(parsed.Title, parsed.SessionTitle))
	}
	p.logger.Debug("parsed JSON reply", "phase", reply.Phase.String(), "title", reply.Title)
	return reply, true
}

func (p *Parser) parseLabeled(raw string, expectTitle bool) (Reply, bool) {
	m := labeledContentRe.FindStringSubmatch(raw)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Reply{}, false
	}

	reply := Reply{Content: strings.TrimSpace(m[1]), Phase: domain.InitialPhase}

	if pm := labeledPhaseRe.FindStringSubmatch(raw); pm != nil {
		reply.Phase = p.resolvePhase(pm[1])
	} else {
		p.logger.Warn("labeled reply without phase section, using initial phase")
	}

	if expectTitle {
		if tm := labeledTitleRe.FindStringSubmatch(raw); tm != nil {
			reply.Title = p.truncateTitle(strings.TrimSpace(tm[1]))
		}
	}
	p.logger.Debug("parsed labeled reply", "phase", reply.Phase.String(), "title", reply.Title)
	return reply, true
}

// parseFallback strips residual brace/bracket fragments and keeps whatever
// prose remains; a blank remainder yields the canned apology.
func (p *Parser) parseFallback(raw string) Reply {
	content := braceFragmentRe.ReplaceAllString(raw, "")
	content = bracketFragRe.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	if content == "" {
		content = ApologyContent
	}
	p.logger.Warn("model output unparseable, using fallback content", "length", len(content))
	return Reply{Content: content, Phase: domain.InitialPhase, Fallback: true}
}

// resolvePhase matches an upper-cased phase token against the enum. Unknown
// tokens fall back to the initial phase rather than failing the parse.
func (p *Parser) resolvePhase(token string) domain.CounselingPhase {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return domain.InitialPhase
	}
	phase, ok := domain.ParsePhase(token)
	if !ok {
		p.logger.Warn("unknown phase token from model, using initial phase", "token", token)
		return domain.InitialPhase
	}
	return phase
}

func (p *Parser) truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > p.titleMaxLength {
		return string(runes[:p.titleMaxLength])
	}
	return title
}

// unescapeLiterals converts literal escape sequences the model sometimes
// double-encodes inside JSON string values.
func unescapeLiterals(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	s = strings.ReplaceAll(s, `\"`, `"`)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
