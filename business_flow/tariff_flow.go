package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/booster/app/dto"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
)

// TariffFlow defines admin operations on the tariff catalog.
type TariffFlow interface {
	AdminCreateTariff(ctx context.Context, req *dto.AdminCreateTariffRequest) (*dto.AdminSaveTariffResponse, error)
	AdminUpdateTariff(ctx context.Context, req *dto.AdminUpdateTariffRequest) (*dto.AdminSaveTariffResponse, error)
	AdminListTariffs(ctx context.Context, module string) (*dto.AdminListTariffsResponse, error)
}

type TariffFlowImpl struct {
	tariffRepo repository.TariffRepository
}

func NewTariffFlow(tariffRepo repository.TariffRepository) TariffFlow {
	return &TariffFlowImpl{tariffRepo: tariffRepo}
}

// AdminCreateTariff adds a tariff; a primary tariff demotes the module's previous primary.
func (f *TariffFlowImpl) AdminCreateTariff(ctx context.Context, req *dto.AdminCreateTariffRequest) (*dto.AdminSaveTariffResponse, error) {
	module, err := models.ParseBoostModule(req.Module)
	if err != nil {
		return nil, NewBusinessError("TARIFF_INVALID_MODULE", "Invalid boost module", ErrInvalidModule)
	}

	tariff := &models.Tariff{
		Module:       module,
		ServiceID:    strings.TrimSpace(req.ServiceID),
		MinLimit:     req.MinLimit,
		PricePer1000: req.PricePer1000,
		IsActive:     req.IsActive,
		IsPrimary:    utils.ToPtr(req.IsPrimary),
		Comment:      req.Comment,
	}
	if tariff.IsActive == nil {
		tariff.IsActive = utils.ToPtr(true)
	}
	if err := validateTariff(tariff); err != nil {
		return nil, err
	}

	if err := f.tariffRepo.SaveWithPrimary(ctx, tariff); err != nil {
		return nil, NewBusinessError("TARIFF_SAVE_FAILED", "Failed to save tariff", err)
	}

	return &dto.AdminSaveTariffResponse{
		Message: "Tariff created successfully",
		Tariff:  toAdminTariffDTO(tariff),
	}, nil
}

// AdminUpdateTariff applies the provided fields to an existing tariff.
func (f *TariffFlowImpl) AdminUpdateTariff(ctx context.Context, req *dto.AdminUpdateTariffRequest) (*dto.AdminSaveTariffResponse, error) {
	tariff, err := f.tariffRepo.ByID(ctx, req.ID)
	if err != nil {
		return nil, NewBusinessError("TARIFF_LOOKUP_FAILED", "Failed to load tariff", err)
	}
	if tariff == nil {
		return nil, NewBusinessError("TARIFF_NOT_FOUND", "Tariff not found", ErrTariffNotFound)
	}

	if req.ServiceID != nil {
		tariff.ServiceID = strings.TrimSpace(*req.ServiceID)
	}
	if req.MinLimit != nil {
		tariff.MinLimit = *req.MinLimit
	}
	if req.PricePer1000 != nil {
		tariff.PricePer1000 = *req.PricePer1000
	}
	if req.IsActive != nil {
		tariff.IsActive = utils.ToPtr(*req.IsActive)
	}
	if req.IsPrimary != nil {
		tariff.IsPrimary = utils.ToPtr(*req.IsPrimary)
	}
	if req.Comment != nil {
		tariff.Comment = req.Comment
	}
	if err := validateTariff(tariff); err != nil {
		return nil, err
	}

	if err := f.tariffRepo.SaveWithPrimary(ctx, tariff); err != nil {
		return nil, NewBusinessError("TARIFF_SAVE_FAILED", "Failed to save tariff", err)
	}

	return &dto.AdminSaveTariffResponse{
		Message: "Tariff updated successfully",
		Tariff:  toAdminTariffDTO(tariff),
	}, nil
}

// AdminListTariffs returns every tariff of a module ordered by id.
func (f *TariffFlowImpl) AdminListTariffs(ctx context.Context, module string) (*dto.AdminListTariffsResponse, error) {
	m, err := models.ParseBoostModule(module)
	if err != nil {
		return nil, NewBusinessError("TARIFF_INVALID_MODULE", "Invalid boost module", ErrInvalidModule)
	}

	rows, err := f.tariffRepo.ListByModule(ctx, m)
	if err != nil {
		return nil, NewBusinessError("TARIFF_LIST_FAILED", "Failed to list tariffs", err)
	}

	items := make([]dto.AdminTariffDTO, 0, len(rows))
	for _, t := range rows {
		items = append(items, toAdminTariffDTO(t))
	}

	return &dto.AdminListTariffsResponse{
		Message: "Tariffs retrieved successfully",
		Items:   items,
	}, nil
}

func validateTariff(t *models.Tariff) error {
	if t.ServiceID == "" {
		return NewBusinessError("TARIFF_SERVICE_ID_REQUIRED", "Service id is required", ErrServiceIDRequired)
	}
	if t.MinLimit < 1 {
		return NewBusinessError("TARIFF_MIN_LIMIT_INVALID", "Min limit must be at least 1", ErrInvalidMinLimit)
	}
	if t.PricePer1000.IsNegative() {
		return NewBusinessError("TARIFF_PRICE_INVALID", "Price must not be negative", ErrInvalidPrice)
	}
	return nil
}

func toAdminTariffDTO(t *models.Tariff) dto.AdminTariffDTO {
	return dto.AdminTariffDTO{
		ID:           t.ID,
		Module:       t.Module.String(),
		ServiceID:    t.ServiceID,
		MinLimit:     t.MinLimit,
		PricePer1000: t.PricePer1000.String(),
		IsActive:     t.Active(),
		IsPrimary:    t.Primary(),
		Comment:      t.Comment,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}
