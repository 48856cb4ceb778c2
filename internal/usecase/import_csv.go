package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/xavierca1/leadflow/internal/entity"
)

type ImportError struct {
	Row           int    `json:"row"`
	Message       string `json:"message"`
	Company       string `json:"company"`
	Email         string `json:"email"`
	Column        string `json:"column,omitempty"`
	ReceivedValue string `json:"received_value,omitempty"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// Accepted header spellings per field, compared after normalizeHeader.
var headerAliases = []struct {
	field   string
	aliases []string
}{
	{"company", []string{"empresa", "company", "nomeempresa", "razaosocial", "organizacao"}},
	{"contact_name", []string{"contato", "contact", "contactname", "nomecontato", "responsavel", "pessoa", "nome"}},
	{"job_title", []string{"cargo", "jobtitle", "funcao"}},
	{"email", []string{"email", "e-mail", "mail"}},
	{"phone", []string{"telefone", "phone", "celular", "whatsapp", "tel", "fone"}},
	{"interest", []string{"interesse", "interest"}},
	{"stage", []string{"status", "stage", "etapa", "fase"}},
	{"created_at", []string{"criadoem", "createdat", "datacriacao", "criacao"}},
	{"updated_at", []string{"atualizadoem", "updatedat", "dataatualizacao", "atualizacao"}},
}

var stageAliases = map[string]entity.Stage{
	"new":                              entity.StageNew,
	"novo":                             entity.StageNew,
	"contacted":                        entity.StageContacted,
	"contatado":                        entity.StageContacted,
	"contato":                          entity.StageContacted,
	"presentation-done":                entity.StagePresentationDone,
	"presentation done":                entity.StagePresentationDone,
	"apresentacao":                     entity.StagePresentationDone,
	"apresentacao de portifolio feita": entity.StagePresentationDone,
	"paused":                           entity.StagePaused,
	"pausado":                          entity.StagePaused,
	"lost":                             entity.StageLost,
	"perdido":                          entity.StageLost,
}

var importDateTimeLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
}

// ImportCSV loads leads from a CSV export. Rows that fail are skipped and
// reported; the rest are kept. Rows whose email matches an existing lead
// (case-insensitively) update it instead of inserting a duplicate.
func (s *LeadService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	content := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyCSV
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = detectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVHeader, err)
	}
	columns := mapHeader(header)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &ImportResult{Errors: []ImportError{}}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		// row is the file line the record starts on
		var row int
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				row = perr.StartLine
			}
			result.Skipped++
			result.Errors = append(result.Errors, ImportError{
				Row:     row,
				Message: fmt.Sprintf("invalid line: %v", err),
			})
			continue
		}

		row, _ = reader.FieldPos(0)

		if blankRecord(record) {
			result.Skipped++
			continue
		}

		if ierr := s.importRecord(ctx, record, columns); ierr != nil {
			ierr.Row = row
			result.Skipped++
			result.Errors = append(result.Errors, *ierr)
			continue
		}
		result.Imported++
	}

	s.Logger.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("csv import finished")

	return result, nil
}

func (s *LeadService) importRecord(ctx context.Context, record []string, columns map[string]int) *ImportError {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	company := field("company")
	email := field("email")
	now := s.Now()

	createdAt, err := parseImportTime(field("created_at"), now)
	if err != nil {
		return &ImportError{
			Message:       err.Error(),
			Company:       company,
			Email:         email,
			Column:        "created_at",
			ReceivedValue: field("created_at"),
		}
	}

	updatedAt, err := parseImportTime(field("updated_at"), now)
	if err != nil {
		return &ImportError{
			Message:       err.Error(),
			Company:       company,
			Email:         email,
			Column:        "updated_at",
			ReceivedValue: field("updated_at"),
		}
	}

	input := entity.LeadInput{
		Company:     company,
		ContactName: field("contact_name"),
		JobTitle:    field("job_title"),
		Email:       email,
		Phone:       field("phone"),
		Interest:    field("interest"),
		Stage:       string(NormalizeStage(field("stage"))),
	}.Normalized()

	if err := ValidateLeadInput(input); err != nil {
		ierr := &ImportError{Message: err.Error(), Company: company, Email: email}
		var ve ValidationError
		if errors.As(err, &ve) {
			ierr.Column = ve.Field
			ierr.ReceivedValue = field(ve.Field)
		}
		return ierr
	}

	if err := s.upsertImported(ctx, input, columns, createdAt, updatedAt); err != nil {
		return &ImportError{
			Message: err.Error(),
			Company: company,
			Email:   email,
			Column:  "database",
		}
	}
	return nil
}

func (s *LeadService) upsertImported(ctx context.Context, input entity.LeadInput, columns map[string]int, createdAt, updatedAt time.Time) error {
	stage := entity.Stage(input.Stage)

	if input.Email != "" {
		existing, err := s.Repo.FindByEmail(ctx, input.Email)
		switch {
		case err == nil:
			from := existing.Stage
			mergeImported(existing, input, columns)
			changed := existing.ApplyStage(stage, updatedAt)
			if err := s.Repo.Update(ctx, existing); err != nil {
				return err
			}
			if changed {
				s.publishStageChange(ctx, existing, from)
			}
			return nil
		case !errors.Is(err, entity.ErrLeadNotFound):
			return err
		}
	}

	if updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}

	lead := &entity.Lead{CreatedAt: createdAt}
	lead.Apply(input)
	lead.ApplyStage(stage, updatedAt)

	if err := s.Repo.Create(ctx, lead); err != nil {
		return err
	}
	s.publishStageChange(ctx, lead, "")
	return nil
}

// mergeImported copies only the columns present in the file, so fields the
// CSV does not carry keep their stored values.
func mergeImported(lead *entity.Lead, in entity.LeadInput, columns map[string]int) {
	has := func(name string) bool {
		_, ok := columns[name]
		return ok
	}

	lead.Company = in.Company
	if has("contact_name") {
		lead.ContactName = in.ContactName
	}
	if has("job_title") {
		lead.JobTitle = in.JobTitle
	}
	lead.Email = in.Email
	if has("phone") {
		lead.Phone = in.Phone
	}
	if has("interest") {
		lead.Interest = in.Interest
	}
}

// NormalizeStage maps stage spellings from older exports onto the fixed
// set. Anything unrecognized becomes StageNew.
func NormalizeStage(raw string) entity.Stage {
	raw = strings.TrimSpace(raw)
	if stage := entity.Stage(raw); stage.Valid() {
		return stage
	}
	if stage, ok := stageAliases[foldText(raw)]; ok {
		return stage
	}
	return entity.StageNew
}

func mapHeader(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, raw := range header {
		key := normalizeHeader(raw)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	columns := make(map[string]int)
	for _, h := range headerAliases {
		for _, alias := range h.aliases {
			if idx, ok := index[normalizeHeader(alias)]; ok {
				columns[h.field] = idx
				break
			}
		}
	}
	return columns
}

func normalizeHeader(s string) string {
	s = foldText(strings.TrimPrefix(strings.TrimSpace(s), "\ufeff"))
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldText lowercases s and strips diacritics.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// detectDelimiter picks ';' when it outnumbers ',' in the first 15 non-blank
// lines.
func detectDelimiter(content string) rune {
	commas, semicolons, seen := 0, 0, 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		commas += strings.Count(line, ",")
		semicolons += strings.Count(line, ";")
		seen++
		if seen == 15 {
			break
		}
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseImportTime accepts the date formats spreadsheets usually emit,
// interpreted in local time. A blank value yields fallback.
func parseImportTime(raw string, fallback time.Time) (time.Time, error) {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if cleaned == "" {
		return fallback, nil
	}
	cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, ",", ""))

	for _, layout := range importDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %s", strings.TrimSpace(raw))
}
