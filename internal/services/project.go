package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/songcraft/backend/internal/models"
	"gorm.io/gorm"
)

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type ProjectListRequest struct {
	Page     int    `form:"page" binding:"min=1"`
	PageSize int    `form:"page_size" binding:"min=1,max=100"`
	Status   string `form:"status"`
	Tier     string `form:"tier"`
	Title    string `form:"title"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Title              string `json:"title" binding:"required,max=200"`
	Tier               string `json:"tier" binding:"required,oneof=demo standard premium"`
	PriceCents         int64  `json:"price_cents" binding:"required,min=1"`
	Currency           string `json:"currency"`
	RevisionsPurchased int    `json:"revisions_purchased" binding:"min=0"`
	Mixing             bool   `json:"mixing"`
	Mastering          bool   `json:"mastering"`
	CommercialUse      bool   `json:"commercial_use"`
	BriefNotes         string `json:"brief_notes"`
}

type UpdateBriefRequest struct {
	Title      string `json:"title"`
	BriefNotes string `json:"brief_notes"`
}

// List returns the paginated projects visible to the caller. Customers see
// their own commissions, producers see their assignments plus the open pool
// of unclaimed paid projects, admins see everything.
func (s *ProjectService) List(req *ProjectListRequest, userID uint, role string) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.Model(&models.Project{})

	switch role {
	case models.RoleCustomer:
		query = query.Where("customer_id = ?", userID)
	case models.RoleProducer:
		query = query.Where("producer_id = ? OR (producer_id IS NULL AND status = ?)",
			userID, models.ProjectStatusPaid)
	}

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Tier != "" {
		query = query.Where("tier = ?", req.Tier)
	}
	if req.Title != "" {
		query = query.Where("title LIKE ?", "%"+req.Title+"%")
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}

	// A producer browsing the open pool must not see projects they were
	// reassigned away from.
	if role == models.RoleProducer {
		visible := projects[:0]
		for _, p := range projects {
			if p.ProducerID == nil && p.IsProducerBlocked(userID) {
				total--
				continue
			}
			visible = append(visible, p)
		}
		projects = visible
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Customer").Preload("Producer").First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetByReference returns a project by its external UUID reference.
func (s *ProjectService) GetByReference(reference string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Where("reference = ?", reference).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// CanView reports whether the user may read the project.
func (s *ProjectService) CanView(project *models.Project, userID uint, role string) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return project.CustomerID == userID
	case models.RoleProducer:
		if project.ProducerID != nil && *project.ProducerID == userID {
			return true
		}
		return project.ProducerID == nil &&
			project.Status == models.ProjectStatusPaid &&
			!project.IsProducerBlocked(userID)
	}
	return false
}

// Create opens a new commission in pending_payment. The price is locked in
// at creation; payment capture and everything after is the lifecycle
// service's business.
func (s *ProjectService) Create(req *CreateProjectRequest, customerID uint) (*models.Project, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	project := models.Project{
		Reference:          uuid.New().String(),
		Title:              req.Title,
		CustomerID:         customerID,
		Tier:               req.Tier,
		PriceCents:         req.PriceCents,
		Currency:           currency,
		Status:             models.ProjectStatusPendingPayment,
		RevisionsPurchased: req.RevisionsPurchased,
		Mixing:             req.Mixing,
		Mastering:          req.Mastering,
		CommercialUse:      req.CommercialUse,
		BriefNotes:         req.BriefNotes,
	}

	if err := s.db.Create(&project).Error; err != nil {
		return nil, err
	}

	return &project, nil
}

// UpdateBrief lets the customer adjust title and notes before a producer has
// started work. Money fields and status are never writable here.
func (s *ProjectService) UpdateBrief(id, customerID uint, req *UpdateBriefRequest) (*models.Project, error) {
	project, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if project.CustomerID != customerID {
		return nil, ErrUnauthorized
	}

	switch project.Status {
	case models.ProjectStatusPendingPayment, models.ProjectStatusPaid, models.ProjectStatusAccepted:
	default:
		return nil, ErrStateConflict
	}

	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.BriefNotes != "" {
		updates["brief_notes"] = req.BriefNotes
	}
	if len(updates) == 0 {
		return project, nil
	}

	if err := s.db.Model(project).Updates(updates).Error; err != nil {
		return nil, err
	}

	return project, nil
}

// Delete removes an unpaid commission. Anything that has seen money keeps
// its row for the audit trail.
func (s *ProjectService) Delete(id, customerID uint, role string) error {
	project, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if role != models.RoleAdmin && project.CustomerID != customerID {
		return ErrUnauthorized
	}
	if project.Status != models.ProjectStatusPendingPayment {
		return ErrStateConflict
	}

	result := s.db.Delete(&models.Project{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// SetDeliveredFiles records the blob references of the delivered audio on
// the project. Producer-only, while work is active.
func (s *ProjectService) SetDeliveredFiles(id, producerID uint, fileRefs []string) (*models.Project, error) {
	project, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if project.ProducerID == nil || *project.ProducerID != producerID {
		return nil, ErrUnauthorized
	}
	if project.IsTerminal() {
		return nil, ErrStateConflict
	}

	if err := s.db.Model(project).
		Update("delivered_file_refs", strings.Join(fileRefs, ",")).Error; err != nil {
		return nil, err
	}
	return project, nil
}
