package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

var (
	// ErrNothingToUpdate is returned for an edit without fields.
	ErrNothingToUpdate = errors.New("nothing to update: patch has no fields")

	// ErrInvalidPatch wraps every field problem of a rejected edit.
	ErrInvalidPatch = errors.New("invalid patch")
)

// RecordPatch maps a column name (canonical or warehouse spelling) to its
// new raw value. Values go through the same normalizers as an import.
type RecordPatch map[string]string

// DeleteByVersion removes every record of one VERSAO.
func (s *Service) DeleteByVersion(ctx context.Context, versao string) (int64, error) {
	v, err := NormalizeVersao(versao)
	if err != nil {
		return 0, fmt.Errorf("delete version: %w", err)
	}

	unlock, err := s.sync.lockPartitions(ctx, v, []string{v})
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := s.wh.DeleteWhere(ctx, RecordFilter{Versao: v})
	s.auditAdmin(ctx, n, err, AuditDetails{Action: ActionDeleteVersion, Versao: v, Deleted: n})
	if err != nil {
		return 0, fmt.Errorf("delete version %s: %w", v, err)
	}
	return n, nil
}

// DeleteByFilial removes every record of one FILIAL across all versions.
func (s *Service) DeleteByFilial(ctx context.Context, filial string) (int64, error) {
	f, err := NormalizeFilial(filial)
	if err != nil {
		return 0, fmt.Errorf("delete filial: %w", err)
	}

	n, err := s.wh.DeleteWhere(ctx, RecordFilter{Filial: f})
	s.auditAdmin(ctx, n, err, AuditDetails{Action: ActionDeleteFilial, Filial: f, Deleted: n})
	if err != nil {
		return 0, fmt.Errorf("delete filial %s: %w", f, err)
	}
	return n, nil
}

// DeleteByFilter removes the records matching every set criterion.
// An empty filter is refused with ErrEmptyFilter.
func (s *Service) DeleteByFilter(ctx context.Context, f RecordFilter) (int64, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	if f.Versao != "" {
		v, err := NormalizeVersao(f.Versao)
		if err != nil {
			return 0, fmt.Errorf("delete by filter: %w", err)
		}
		f.Versao = v

		unlock, err := s.sync.lockPartitions(ctx, v, []string{v})
		if err != nil {
			return 0, err
		}
		defer unlock()
	}
	if f.Filial != "" {
		fl, err := NormalizeFilial(f.Filial)
		if err != nil {
			return 0, fmt.Errorf("delete by filter: %w", err)
		}
		f.Filial = fl
	}
	if f.DataFrom != nil && f.DataTo != nil && f.DataTo.Before(*f.DataFrom) {
		return 0, fmt.Errorf("delete by filter: data_to %s is before data_from %s",
			f.DataTo.Format(CanonicalDateLayout), f.DataFrom.Format(CanonicalDateLayout))
	}

	n, err := s.wh.DeleteWhere(ctx, f)
	s.auditAdmin(ctx, n, err, AuditDetails{
		Action:  ActionDeleteFilter,
		Versao:  f.Versao,
		Filial:  f.Filial,
		Deleted: n,
		Filter:  &f,
	})
	if err != nil {
		return 0, fmt.Errorf("delete by filter: %w", err)
	}
	return n, nil
}

// EditRecord changes mutable attributes of one record. Key columns cannot
// be edited. Every value is normalized first and all invalid fields are
// reported together. The returned record reflects the stored state.
func (s *Service) EditRecord(ctx context.Context, key RecordKey, patch RecordPatch) (WarehouseRecord, error) {
	if len(patch) == 0 {
		return WarehouseRecord{}, ErrNothingToUpdate
	}

	unlock, err := s.sync.lockPartitions(ctx, key.Versao, []string{key.Versao})
	if err != nil {
		return WarehouseRecord{}, err
	}
	defer unlock()

	current, err := s.wh.GetRecord(ctx, key)
	if err != nil {
		return WarehouseRecord{}, fmt.Errorf("edit record %s: %w", key, err)
	}

	changes, diff, err := buildChanges(current.NormalizedRow, patch)
	if err != nil {
		return WarehouseRecord{}, fmt.Errorf("edit record %s: %w", key, err)
	}
	if len(changes) == 0 {
		return current, nil
	}

	err = s.wh.UpdateRecord(ctx, key, changes)
	s.auditAdmin(ctx, 1, err, AuditDetails{
		Action:  ActionEditRecord,
		Versao:  key.Versao,
		Filial:  current.Filial,
		Updated: 1,
		Key:     &key,
		Diff:    diff,
	})
	if err != nil {
		return WarehouseRecord{}, fmt.Errorf("edit record %s: %w", key, err)
	}

	return s.wh.GetRecord(ctx, key)
}

// buildChanges normalizes patch against cur and returns the changed
// warehouse columns and the field-level diff.
func buildChanges(cur NormalizedRow, patch RecordPatch) (map[string]any, map[string]FieldChange, error) {
	names := make([]string, 0, len(patch))
	for name := range patch {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := make(map[string]any)
	diff := make(map[string]FieldChange)
	var errs []error

	for _, name := range names {
		spec, ok := LookupField(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown column", name))
			continue
		}
		if !spec.Mutable {
			errs = append(errs, fmt.Errorf("%s: column is part of the key and cannot be edited", spec.Name))
			continue
		}

		oldVal, newVal, err := normalizeMutable(cur, spec.Name, patch[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec.Name, err))
			continue
		}
		if oldVal == newVal {
			continue
		}
		changes[spec.DBColumn] = newVal
		diff[spec.Name] = FieldChange{Old: oldVal, New: newVal}
	}

	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidPatch, errors.Join(errs...))
	}
	return changes, diff, nil
}

// normalizeMutable returns the current and normalized new value of a mutable column.
func normalizeMutable(cur NormalizedRow, col, raw string) (any, any, error) {
	var (
		v   string
		err error
	)
	switch col {
	case ColValor:
		f, err := NormalizeValor(raw)
		return cur.Valor, f, err
	case ColFilial:
		v, err = NormalizeFilial(raw)
		return cur.Filial, v, err
	case ColDescricao:
		v, err = NormalizeDescricao(raw)
		return cur.Descricao, v, err
	case ColOperacao:
		v, err = NormalizeOperacao(raw)
		return cur.Operacao, v, err
	case ColRateio:
		v, err = NormalizeRateio(raw)
		return cur.Rateio, v, err
	case ColOrigem:
		v, err = NormalizeOrigem(raw)
		return cur.Origem, v, err
	case ColTipo:
		v, err = NormalizeTipo(raw)
		return cur.Tipo, v, err
	}
	return nil, nil, fmt.Errorf("column %s is not editable", col)
}

// auditAdmin appends the audit record of an administrative action.
func (s *Service) auditAdmin(ctx context.Context, affected int64, opErr error, details AuditDetails) {
	rec := AuditRecord{
		TotalRegistros: int(affected),
		Status:         StatusSuccess,
		Detalhes:       details,
	}
	if opErr != nil {
		rec.Status = StatusFailure
		rec.TotalRegistros = 0
		rec.Detalhes.Updated = 0
		rec.Detalhes.Deleted = 0
		rec.Detalhes.Error = opErr.Error()
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
	defer cancel()
	if err := s.audit.Append(actx, rec); err != nil {
		slog.Error("audit append failed", "action", details.Action, "error", err)
	}
}
