package helpdesk

import (
	"context"

	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

// Reference data changes that have to look at tickets go through the service; plain additions
// and office edits go straight to refdata.Store.

// RenameCategory renames the category in reference data, the mapping and every ticket.
func (s *Service) RenameCategory(ctx context.Context, from, to string) (int, error) {
	if err := s.ref.RenameCategory(from, to); err != nil {
		return 0, err
	}
	n, err := s.repo.RenameCategory(ctx, from, to)
	if err != nil {
		common.L().Error("category renamed in reference data but not on tickets",
			zap.String("from", from), zap.String("to", to), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// DeleteCategory refuses while tickets still use the category.
func (s *Service) DeleteCategory(ctx context.Context, name string) error {
	n, err := s.repo.Count(ctx, common.TicketFilter{Category: name})
	if err != nil {
		return err
	}
	if n > 0 {
		return common.Conflict("category %q is used by %d tickets", name, n)
	}
	return s.ref.DeleteCategory(name)
}

// DeleteCourse refuses while tickets still use the course.
func (s *Service) DeleteCourse(ctx context.Context, name string) error {
	n, err := s.repo.Count(ctx, common.TicketFilter{Course: name})
	if err != nil {
		return err
	}
	if n > 0 {
		return common.Conflict("course %q is used by %d tickets", name, n)
	}
	return s.ref.DeleteCourse(name)
}

type OfficeDeletion struct {
	Office         refdata.Office         `json:"office"`
	DroppedMapping []refdata.MappingEntry `json:"dropped_mapping"`
	// Queued is the number of active tickets still assigned to the deleted office.
	Queued int `json:"queued"`
}

// DeleteOffice removes the office and its mapping entries. Tickets keep their assignment
// snapshot and stay in the (now orphaned) queue until an admin drains it.
func (s *Service) DeleteOffice(ctx context.Context, id string) (*OfficeDeletion, error) {
	o, dropped, err := s.ref.DeleteOffice(id)
	if err != nil {
		return nil, err
	}
	res := &OfficeDeletion{Office: o, DroppedMapping: dropped}
	if res.DroppedMapping == nil {
		res.DroppedMapping = []refdata.MappingEntry{}
	}
	n, err := s.repo.Count(ctx, common.TicketFilter{OfficeID: id, Status: common.ActiveStatuses})
	if err != nil {
		return nil, err
	}
	res.Queued = n
	if n > 0 {
		common.L().Warn("office deleted with active tickets", zap.String("office", id), zap.Int("active", n))
	}
	return res, nil
}
