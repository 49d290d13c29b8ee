package server

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/FranksOps/kwscout/internal/analyzer"
	"github.com/FranksOps/kwscout/internal/csvbatch"
	"github.com/FranksOps/kwscout/internal/report"
	"github.com/FranksOps/kwscout/internal/storage"
)

// MsgUploadSuccess is returned as meta after a batch is accepted.
const MsgUploadSuccess = "CSV file uploaded successfully, keywords are being processed"

type pageMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// keywordView is a keyword with the filtered URL lists. A nil list means the
// filter was not requested and renders as null.
type keywordView struct {
	*storage.Keyword
	MatchingAdwordURLs []string `json:"matching_adword_urls"`
	MatchingResultURLs []string `json:"matching_result_urls"`
}

// listKeywords returns one page of the owner's keywords, oldest first.
func (s *Server) listKeywords(c fiber.Ctx) error {
	page, perPage, _ := storage.NormalizePage(queryInt(c, "page"), queryInt(c, "per_page"))

	keywords, total, err := s.store.List(c.Context(), ownerID(c), page, perPage)
	if err != nil {
		return err
	}
	if keywords == nil {
		keywords = []*storage.Keyword{}
	}
	return jsonData(c, fiber.StatusOK, keywords, pageMeta{Page: page, PerPage: perPage, TotalItems: total})
}

// createKeywords validates an uploaded CSV and ingests its keywords.
func (s *Server) createKeywords(c fiber.Ctx) error {
	var file *csvbatch.File
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		file = &csvbatch.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Body:        f,
		}
	}

	names, err := csvbatch.Validate(file)
	if err != nil {
		var rej *csvbatch.Rejection
		if errors.As(err, &rej) {
			return jsonError(c, fiber.StatusUnprocessableEntity, rej.Reason.Code(), rej.Details...)
		}
		return err
	}

	sum, err := s.ingest.Ingest(c.Context(), ownerID(c), names)
	if err != nil {
		return err
	}
	return jsonData(c, fiber.StatusCreated, sum, MsgUploadSuccess)
}

// showKeyword returns one of the owner's keywords with optional URL filters.
func (s *Server) showKeyword(c fiber.Ctx) error {
	kw, err := s.store.Find(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && kw.OwnerID != ownerID(c)) {
		return jsonError(c, fiber.StatusNotFound, "not_found")
	}
	if err != nil {
		return err
	}

	f := filterFromQuery(c)
	view := keywordView{Keyword: kw}
	view.MatchingAdwordURLs, _ = analyzer.MatchingAdURLs(kw.AdsTopURLs, f)
	view.MatchingResultURLs, _ = analyzer.MatchingResultURLs(kw.ResultURLs, f)

	return jsonData(c, fiber.StatusOK, view, nil)
}

// downloadKeywords exports all of the owner's keywords as CSV.
func (s *Server) downloadKeywords(c fiber.Ctx) error {
	keywords, err := report.Collect(c.Context(), s.store, ownerID(c))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, keywords); err != nil {
		return err
	}

	c.Attachment("keywords.csv")
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

// filterFromQuery distinguishes an absent parameter from an empty one.
func filterFromQuery(c fiber.Ctx) analyzer.Filter {
	q := c.Queries()
	param := func(key string) *string {
		v, ok := q[key]
		if !ok {
			return nil
		}
		return &v
	}
	return analyzer.Filter{
		AdURLContains: param("adwords_url_contains"),
		Word:          param("word"),
		MatchAtLeast:  param("match_at_least"),
	}
}

// queryInt returns 0 for absent or invalid values so defaults apply.
func queryInt(c fiber.Ctx, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
