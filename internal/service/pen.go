// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Backend (Data layer)     → records.Client for pens, UserRepository for accounts
//
// FAIL-SOFT PENS:
// PenService never returns an error. Every backend problem, whether a
// transport error or a refused request, is logged, reported to the user as
// an error toast through the injected notify.Notifier, and turned into a
// neutral value (nil, an empty slice or false). Handlers therefore render
// whatever they get back and let the toasts explain what went wrong.
//
// AuthService (auth.go) is not fail-soft: it returns apperror values that the
// handlers map to HTTP statuses, like the rest of the application.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
	"github.com/sakif/codecanvas/internal/records"
)

// PenTable is the backend table holding pens.
const PenTable = "pen_c"

const (
	GetAllLimit        = 50
	TrendingFetchLimit = 100
	TrendingSize       = 10
	SearchLimit        = 100

	MaxTitleLength = 200
	MaxCodeLength  = 100000 // bytes, per code field
	MaxTags        = 20
)

// SearchOptions tunes Search.
type SearchOptions struct {
	SortBy   SortBy
	FilterBy FilterBy
}

// PenService is the data service for pens.
type PenService struct {
	client   records.Client
	notifier notify.Notifier
	logger   *slog.Logger

	// onSaved runs after a successful create or update. The thumbnail
	// worker hooks in here.
	onSaved func(*model.Pen)
}

// NewPenService creates a PenService around a backend client.
func NewPenService(client records.Client, notifier notify.Notifier, logger *slog.Logger) *PenService {
	return &PenService{
		client:   client,
		notifier: notifier,
		logger:   logger,
	}
}

// OnSaved registers fn to run after every successful create or update.
func (s *PenService) OnSaved(fn func(*model.Pen)) {
	s.onSaved = fn
}

// GetAll returns the most recently modified pens, newest first.
func (s *PenService) GetAll(ctx context.Context) []*model.Pen {
	resp, err := s.client.FetchRecords(ctx, PenTable, records.Query{
		Fields:  penListFields,
		OrderBy: []records.OrderBy{{FieldName: records.FieldModifiedOn, SortType: records.SortDesc}},
		Paging:  &records.Paging{Limit: GetAllLimit},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "error fetching pens", slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to load pens")
		return []*model.Pen{}
	}
	if !resp.Success {
		msg := records.Failure("fetch pens", resp.Message)
		s.logger.ErrorContext(ctx, "fetching pens refused", slog.String("message", msg))
		s.notifier.Error(ctx, msg)
		return []*model.Pen{}
	}
	return mapAll(resp.Data)
}

// GetByID returns one pen, or nil when it is missing or cannot be loaded.
// No toast is raised: callers decide how to present a missing pen.
func (s *PenService) GetByID(ctx context.Context, id int64) *model.Pen {
	if id <= 0 {
		return nil
	}
	resp, err := s.client.GetRecordByID(ctx, PenTable, id, records.Query{Fields: penListFields})
	if err != nil {
		s.logger.ErrorContext(ctx, "error fetching pen", slog.Int64("id", id), slog.String("error", err.Error()))
		return nil
	}
	if !resp.Success {
		s.logger.WarnContext(ctx, "fetching pen refused", slog.Int64("id", id), slog.String("message", resp.Message))
		return nil
	}
	return MapFromDatabase(resp.Data)
}

// GetTrending returns the TrendingSize most popular pens (likes + views).
//
// The backend cannot sort on a computed column, so a wider window of pens is
// fetched and ranked here.
func (s *PenService) GetTrending(ctx context.Context) []*model.Pen {
	resp, err := s.client.FetchRecords(ctx, PenTable, records.Query{
		Fields:  penListFields,
		OrderBy: []records.OrderBy{{FieldName: records.FieldModifiedOn, SortType: records.SortDesc}},
		Paging:  &records.Paging{Limit: TrendingFetchLimit},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "error fetching trending pens", slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to load trending pens")
		return []*model.Pen{}
	}
	if !resp.Success {
		msg := records.Failure("fetch trending pens", resp.Message)
		s.logger.ErrorContext(ctx, "fetching trending pens refused", slog.String("message", msg))
		s.notifier.Error(ctx, msg)
		return []*model.Pen{}
	}
	return TopTrending(mapAll(resp.Data), TrendingSize)
}

// Search matches query against the chosen field(s) and sorts the result.
// A blank query returns no pens without calling the backend. Search raises
// no toasts; an empty result speaks for itself.
func (s *PenService) Search(ctx context.Context, query string, opts SearchOptions) []*model.Pen {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []*model.Pen{}
	}

	q := records.Query{
		Fields: penListFields,
		Paging: &records.Paging{Limit: SearchLimit},
	}
	switch ParseFilterBy(string(opts.FilterBy)) {
	case FilterTitle:
		q.Where = []records.Condition{records.Contains(colTitle, term)}
	case FilterAuthor:
		q.Where = []records.Condition{records.Contains(colAuthorName, term)}
	case FilterTags:
		q.Where = []records.Condition{records.Contains(colTags, term)}
	default:
		q.WhereGroups = []records.WhereGroup{records.AnyOf(
			records.Contains(colTitle, term),
			records.Contains(colAuthorName, term),
			records.Contains(colTags, term),
		)}
	}

	resp, err := s.client.FetchRecords(ctx, PenTable, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "error searching pens", slog.String("query", term), slog.String("error", err.Error()))
		return []*model.Pen{}
	}
	if !resp.Success {
		s.logger.ErrorContext(ctx, "searching pens refused", slog.String("query", term), slog.String("message", resp.Message))
		return []*model.Pen{}
	}

	pens := mapAll(resp.Data)
	SortPens(pens, ParseSortBy(string(opts.SortBy)))
	return pens
}

// Create validates and stores a new pen owned by author.
func (s *PenService) Create(ctx context.Context, in model.PenInput, author model.Author) *model.Pen {
	in = normalizeInput(in)
	if err := validatePenInput(in); err != nil {
		s.rejectInput(ctx, "create", err)
		return nil
	}

	now := time.Now().UTC()
	pen := &model.Pen{
		Title:      in.Title,
		HTML:       in.HTML,
		CSS:        in.CSS,
		JavaScript: in.JavaScript,
		Thumbnail:  in.Thumbnail,
		CreatedAt:  now,
		UpdatedAt:  now,
		Author:     author,
		Tags:       in.Tags,
	}

	resp, err := s.client.CreateRecord(ctx, PenTable, []records.Record{MapToDatabase(pen)})
	if err != nil {
		s.logger.ErrorContext(ctx, "error creating pen", slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to create pen")
		return nil
	}

	created := s.firstSaved(ctx, "create", resp)
	if created == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "pen created",
		slog.Int64("id", created.ID),
		slog.String("title", created.Title),
		slog.String("author_id", created.Author.ID),
	)
	s.notifier.Success(ctx, "Pen created successfully!")
	s.saved(created)
	return created
}

// Update changes the editable fields of a pen.
//
// A non-empty actorID must match the pen's author. Counters and the creation
// time are never sent, so concurrent likes and views are not overwritten.
func (s *PenService) Update(ctx context.Context, id int64, in model.PenInput, actorID string) *model.Pen {
	current := s.owned(ctx, id, actorID, "edit")
	if current == nil {
		return nil
	}

	in = normalizeInput(in)
	if err := validatePenInput(in); err != nil {
		s.rejectInput(ctx, "update", err)
		return nil
	}

	rec := records.Record{
		records.FieldID: id,
		colTitle:        in.Title,
		colHTML:         in.HTML,
		colCSS:          in.CSS,
		colJavaScript:   in.JavaScript,
		colTags:         joinTags(in.Tags),
		colUpdatedAt:    time.Now().UTC().Format(timestampLayout),
	}
	if in.Thumbnail != "" {
		rec[colThumbnail] = in.Thumbnail
	}

	resp, err := s.client.UpdateRecord(ctx, PenTable, []records.Record{rec})
	if err != nil {
		s.logger.ErrorContext(ctx, "error updating pen", slog.Int64("id", id), slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to update pen")
		return nil
	}

	updated := s.firstSaved(ctx, "update", resp)
	if updated == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "pen updated", slog.Int64("id", updated.ID))
	s.notifier.Success(ctx, "Pen updated successfully!")
	s.saved(updated)
	return updated
}

// Delete removes a pen. A non-empty actorID must match the pen's author.
func (s *PenService) Delete(ctx context.Context, id int64, actorID string) bool {
	if s.owned(ctx, id, actorID, "delete") == nil {
		return false
	}

	resp, err := s.client.DeleteRecord(ctx, PenTable, []int64{id})
	if err != nil {
		s.logger.ErrorContext(ctx, "error deleting pen", slog.Int64("id", id), slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to delete pen")
		return false
	}
	if !resp.Success {
		msg := records.Failure("delete pen", resp.Message)
		s.logger.ErrorContext(ctx, "deleting pen refused", slog.Int64("id", id), slog.String("message", msg))
		s.notifier.Error(ctx, msg)
		return false
	}

	succeeded, failed := resp.Split()
	s.reportFailed(ctx, "delete", failed)
	if len(succeeded) == 0 {
		return false
	}
	s.logger.InfoContext(ctx, "pen deleted", slog.Int64("id", id))
	s.notifier.Success(ctx, "Pen deleted successfully!")
	return true
}

// Like adds one like and returns the updated pen. Like every other write it
// raises a toast for the outcome.
func (s *PenService) Like(ctx context.Context, id int64) *model.Pen {
	return s.increment(ctx, id, colLikes, "pen liked")
}

// View records one view and returns the updated pen.
func (s *PenService) View(ctx context.Context, id int64) *model.Pen {
	return s.increment(ctx, id, colViews, "pen viewed")
}

// SetThumbnail stores a thumbnail reference for a pen. It raises no toasts:
// it runs in the background after the user's request has finished.
func (s *PenService) SetThumbnail(ctx context.Context, id int64, ref string) bool {
	resp, err := s.client.UpdateRecord(ctx, PenTable, []records.Record{{
		records.FieldID: id,
		colThumbnail:    ref,
	}})
	if err != nil {
		s.logger.ErrorContext(ctx, "error setting thumbnail", slog.Int64("id", id), slog.String("error", err.Error()))
		return false
	}
	if !resp.Success {
		s.logger.ErrorContext(ctx, "setting thumbnail refused", slog.Int64("id", id), slog.String("message", resp.Message))
		return false
	}
	succeeded, failed := resp.Split()
	for _, f := range failed {
		s.logger.ErrorContext(ctx, "setting thumbnail failed", slog.Int64("id", id), slog.String("message", f.Message))
	}
	return len(succeeded) > 0
}

func (s *PenService) increment(ctx context.Context, id int64, field, event string) *model.Pen {
	resp, err := s.client.IncrementField(ctx, PenTable, id, field, 1)
	if err != nil {
		s.logger.ErrorContext(ctx, "error incrementing "+field, slog.Int64("id", id), slog.String("error", err.Error()))
		s.notifier.Error(ctx, "Failed to update pen")
		return nil
	}
	if !resp.Success {
		msg := records.Failure("update pen", resp.Message)
		s.logger.WarnContext(ctx, "incrementing "+field+" refused", slog.Int64("id", id), slog.String("message", msg))
		s.notifier.Error(ctx, msg)
		return nil
	}
	pen := MapFromDatabase(resp.Data)
	if pen == nil {
		s.logger.ErrorContext(ctx, "incrementing "+field+" returned no record", slog.Int64("id", id))
		s.notifier.Error(ctx, "Failed to update pen")
		return nil
	}
	s.logger.DebugContext(ctx, event, slog.Int64("id", id), slog.Int64("likes", pen.Likes), slog.Int64("views", pen.Views))
	s.notifier.Success(ctx, "Pen updated successfully!")
	return pen
}

// owned loads a pen and checks that actorID may change it.
func (s *PenService) owned(ctx context.Context, id int64, actorID, verb string) *model.Pen {
	pen := s.GetByID(ctx, id)
	if pen == nil {
		s.notifier.Error(ctx, "Pen not found")
		return nil
	}
	if actorID != "" && pen.Author.ID != actorID {
		s.logger.WarnContext(ctx, "pen ownership check failed",
			slog.Int64("id", id),
			slog.String("actor_id", actorID),
			slog.String("author_id", pen.Author.ID),
		)
		s.notifier.Error(ctx, fmt.Sprintf("You can only %s your own pens", verb))
		return nil
	}
	return pen
}

// firstSaved unpacks a create/update response: a refused request or failed
// records become error toasts, and the first saved record is returned.
func (s *PenService) firstSaved(ctx context.Context, op string, resp *records.MutateResponse) *model.Pen {
	if !resp.Success {
		msg := records.Failure(op+" pen", resp.Message)
		s.logger.ErrorContext(ctx, op+" pen refused", slog.String("message", msg))
		s.notifier.Error(ctx, msg)
		return nil
	}
	succeeded, failed := resp.Split()
	s.reportFailed(ctx, op, failed)
	if len(succeeded) == 0 {
		return nil
	}
	return MapFromDatabase(succeeded[0].Data)
}

func (s *PenService) reportFailed(ctx context.Context, op string, failed []records.Result) {
	if len(failed) == 0 {
		return
	}
	s.logger.ErrorContext(ctx, fmt.Sprintf("failed to %s %d records", op, len(failed)))
	for _, f := range failed {
		if f.Message != "" {
			s.notifier.Error(ctx, f.Message)
		}
	}
}

func (s *PenService) rejectInput(ctx context.Context, op string, err error) {
	msg := apperror.FromValidation(err).Error()
	s.logger.InfoContext(ctx, "pen input rejected", slog.String("op", op), slog.String("reason", msg))
	s.notifier.Error(ctx, msg)
}

func (s *PenService) saved(p *model.Pen) {
	if s.onSaved != nil {
		s.onSaved(p)
	}
}

func normalizeInput(in model.PenInput) model.PenInput {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = DefaultTitle
	}
	in.Thumbnail = strings.TrimSpace(in.Thumbnail)
	in.Tags = cleanTags(in.Tags)
	return in
}

func validatePenInput(in model.PenInput) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.RuneLength(0, MaxTitleLength)),
		validation.Field(&in.HTML, validation.Length(0, MaxCodeLength)),
		validation.Field(&in.CSS, validation.Length(0, MaxCodeLength)),
		validation.Field(&in.JavaScript, validation.Length(0, MaxCodeLength)),
		validation.Field(&in.Tags, validation.Length(0, MaxTags)),
	)
}
