package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
)

const (
	chatDocLimit        = 1200
	chatMaxColumnRefs   = 10
	chatInvalidScanText = "Invalid scan_run_id"
	chatHintText        = "Try: 'What does orders represent?' or 'How do I join orders to payments?'"
)

// Chat answer sources.
const (
	ChatSourceRelationships = "relationships"
	ChatSourceDocs          = "docs"
	ChatSourceSchema        = "schema"
)

var (
	joinQuestionPattern = regexp.MustCompile(`join|relationship|connect`)
	wordPattern         = regexp.MustCompile(`[a-z0-9_]+`)
)

// ChatRequest is a question about one scan.
type ChatRequest struct {
	ScanRunID  uuid.UUID
	Question   string
	IncludeSQL bool
}

// ChatAnswer is grounded only in the scan's persisted catalog, docs and relationships.
type ChatAnswer struct {
	Answer            string   `json:"answer"`
	ReferencedObjects []string `json:"referenced_objects"`
	SQLSuggestion     *string  `json:"sql_suggestion"`
	Sources           []string `json:"sources"`
}

// ChatService answers questions about a scan.
type ChatService interface {
	Ask(ctx context.Context, req ChatRequest) (*ChatAnswer, error)
}

type chatService struct {
	runs          repositories.ScanRunRepository
	tables        repositories.ScanTableRepository
	relationships repositories.RelationshipRepository
	docs          repositories.DocRepository
	logger        *zap.Logger
}

// NewChatService creates the rule-based chat responder.
func NewChatService(repos ScanRepositories, logger *zap.Logger) ChatService {
	return &chatService{
		runs:          repos.Runs,
		tables:        repos.Tables,
		relationships: repos.Relationships,
		docs:          repos.Docs,
		logger:        logger.Named("chat"),
	}
}

func emptyAnswer(text string) *ChatAnswer {
	return &ChatAnswer{Answer: text, ReferencedObjects: []string{}, Sources: []string{}}
}

func (s *chatService) Ask(ctx context.Context, req ChatRequest) (*ChatAnswer, error) {
	if _, err := s.runs.GetByID(ctx, req.ScanRunID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return emptyAnswer(chatInvalidScanText), nil
		}
		return nil, err
	}

	q := strings.ToLower(req.Question)
	words := wordPattern.FindAllString(q, -1)

	tables, err := s.tables.ListByRun(ctx, req.ScanRunID)
	if err != nil {
		return nil, err
	}
	rels, err := s.relationships.ListByRun(ctx, req.ScanRunID)
	if err != nil {
		return nil, err
	}
	mentioned := mentionedTables(tables, words)

	if joinQuestionPattern.MatchString(q) && len(rels) > 0 {
		return joinAnswer(pickRelationship(rels, mentioned), req.IncludeSQL), nil
	}

	for _, t := range mentioned {
		doc, err := s.docs.GetByTableID(ctx, t.ID)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if doc.DocMarkdown == "" {
			continue
		}
		return &ChatAnswer{
			Answer:            truncateUTF8(doc.DocMarkdown, chatDocLimit),
			ReferencedObjects: []string{t.FullName()},
			Sources:           []string{ChatSourceDocs},
		}, nil
	}

	columns, err := s.tables.ListColumnsByRun(ctx, req.ScanRunID)
	if err != nil {
		return nil, err
	}
	if hits := mentionedColumns(columns, words); len(hits) > 0 {
		return &ChatAnswer{
			Answer:            "Matching columns: " + strings.Join(hits, ", "),
			ReferencedObjects: hits[:min(len(hits), chatMaxColumnRefs)],
			Sources:           []string{ChatSourceSchema},
		}, nil
	}

	return emptyAnswer(chatHintText), nil
}

// mentionedTables returns the tables named in the question, in order of first
// mention. A table matches by its name or its singular or plural form.
func mentionedTables(tables []*models.Table, words []string) []*models.Table {
	position := make(map[string]int, len(words))
	for i, w := range words {
		if _, ok := position[w]; !ok {
			position[w] = i
		}
	}

	type hit struct {
		table *models.Table
		pos   int
	}
	var hits []hit
	for _, t := range tables {
		name := strings.ToLower(t.TableName)
		best := -1
		for _, form := range lo.Uniq([]string{name, inflection.Singular(name), inflection.Plural(name)}) {
			if p, ok := position[form]; ok && (best < 0 || p < best) {
				best = p
			}
		}
		if best >= 0 {
			hits = append(hits, hit{table: t, pos: best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	return lo.Map(hits, func(h hit, _ int) *models.Table { return h.table })
}

// pickRelationship prefers a link between the first two mentioned tables,
// in either orientation, then the highest-confidence link.
func pickRelationship(rels []*models.Relationship, mentioned []*models.Table) *models.Relationship {
	sorted := append([]*models.Relationship(nil), rels...)
	SortRelationships(sorted)

	if len(mentioned) >= 2 {
		a, b := mentioned[0], mentioned[1]
		for _, r := range sorted {
			from, to := r.From(), r.To()
			if (refIsTable(from, a) && refIsTable(to, b)) || (refIsTable(from, b) && refIsTable(to, a)) {
				return r
			}
		}
	}

	best := sorted[0]
	for _, r := range sorted[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}

func refIsTable(ref models.ColumnRef, t *models.Table) bool {
	return ref.Schema == t.SchemaName && ref.Table == t.TableName
}

func joinAnswer(r *models.Relationship, includeSQL bool) *ChatAnswer {
	from, to := r.From(), r.To()
	answer := &ChatAnswer{
		Answer:            fmt.Sprintf("A common join is %s.%s → %s.%s.", from.Table, from.Column, to.Table, to.Column),
		ReferencedObjects: []string{from.String(), to.String()},
		Sources:           []string{ChatSourceRelationships},
	}
	if includeSQL {
		sql := fmt.Sprintf("SELECT * FROM %s a JOIN %s b ON a.%s = b.%s LIMIT 100;",
			from.TableName(), to.TableName(), from.Column, to.Column)
		answer.SQLSuggestion = &sql
	}
	return answer
}

// mentionedColumns returns the sorted unique column names that appear as
// words in the question.
func mentionedColumns(columns map[uuid.UUID][]*models.Column, words []string) []string {
	wordSet := lo.SliceToMap(words, func(w string) (string, struct{}) { return w, struct{}{} })
	var hits []string
	for _, cols := range columns {
		for _, c := range cols {
			if _, ok := wordSet[strings.ToLower(c.ColumnName)]; ok {
				hits = append(hits, c.ColumnName)
			}
		}
	}
	hits = lo.Uniq(hits)
	sort.Strings(hits)
	return hits
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ensure chatService implements ChatService at compile time.
var _ ChatService = (*chatService)(nil)
