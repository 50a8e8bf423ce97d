// Package normalize turns raw source records into canonical, deduplicated
// PDUFA records.
package normalize

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
)

// Normalizer adapts, validates and merges candidates from every source.
type Normalizer struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewNormalizer builds a normalizer; a nil logger disables debug output.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Normalizer{validate: v, logger: logger}
}

// Normalize returns one canonical record per (company, drug) pair. Invalid
// candidates are dropped and tallied by field, never fatal.
func (n *Normalizer) Normalize(raws []domain.RawRecord) domain.NormalizeResult {
	result := domain.NormalizeResult{
		Candidates:  len(raws),
		DropReasons: map[string]int{},
	}

	groups := map[domain.RecordKey][]domain.PDUFARecord{}
	var order []domain.RecordKey

	for _, raw := range raws {
		record, err := Adapt(raw)
		if err == nil {
			err = n.check(raw.Source(), record)
		}
		if err != nil {
			result.Dropped++
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				result.DropReasons[verr.Field]++
			} else {
				result.DropReasons["unknown"]++
			}
			n.logger.Debug("drop candidate", zap.String("source", raw.Source()), zap.Error(err))
			continue
		}

		key := record.Key()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], record)
	}

	result.Records = make([]domain.PDUFARecord, 0, len(order))
	for _, key := range order {
		group := groups[key]
		result.Merged += len(group) - 1
		result.Records = append(result.Records, merge(group))
	}
	domain.SortRecords(result.Records)

	return result
}

func (n *Normalizer) check(source string, record domain.PDUFARecord) error {
	err := n.validate.Struct(record)
	if err == nil {
		if record.Key().Company == "" {
			return &domain.ValidationError{Source: source, Field: "company", Reason: "no usable characters"}
		}
		if record.Key().Drug == "" {
			return &domain.ValidationError{Source: source, Field: "drug", Reason: "no usable characters"}
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &domain.ValidationError{Source: source, Field: verrs[0].Field(), Reason: "failed " + verrs[0].Tag()}
	}
	return &domain.ValidationError{Source: source, Field: "record", Reason: err.Error()}
}

// merge picks the most complete candidate and fills its gaps from the
// others. Ties go to the newest update, then the latest decision date, then
// the lowest source id, so the winner does not depend on input order.
func merge(group []domain.PDUFARecord) domain.PDUFARecord {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if a.Completeness() != b.Completeness() {
			return a.Completeness() > b.Completeness()
		}
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		if !a.PDUFADate.Equal(b.PDUFADate) {
			return a.PDUFADate.After(b.PDUFADate)
		}
		return strings.Join(a.Sources, ",") < strings.Join(b.Sources, ",")
	})

	winner := group[0].Clone()
	for _, other := range group[1:] {
		if winner.Ticker == "" {
			winner.Ticker = other.Ticker
		}
		if winner.Indication == "" {
			winner.Indication = other.Indication
		}
		if winner.Description == "" {
			winner.Description = other.Description
		}
		winner.Sources = domain.MergeSources(winner.Sources, other.Sources)
		if other.LastUpdated.After(winner.LastUpdated) {
			winner.LastUpdated = other.LastUpdated
		}
	}
	winner.Sources = domain.MergeSources(winner.Sources, nil)
	return winner
}
