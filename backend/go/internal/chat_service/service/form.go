package service

import (
	"context"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// FormSubmitMessage 是提交成功后返回给用户的提示。
const FormSubmitMessage = "Merci ! Votre demande a bien été enregistrée, l'équipe admissions vous recontactera rapidement."

// FormService 处理表单分支收集到的报名/联系信息。
type FormService struct {
	store  store.FormStore
	logger *logger.Logger
}

func NewFormService(s store.FormStore, l *logger.Logger) *FormService {
	return &FormService{store: s, logger: l}
}

func (f *FormService) Submit(ctx context.Context, sub *models.FormSubmission) (*models.FormSubmission, error) {
	if err := sub.Normalize(); err != nil {
		return nil, err
	}
	if err := f.store.Create(ctx, sub); err != nil {
		return nil, err
	}
	// 不记录邮箱等个人信息
	f.logger.WithPayload(map[string]interface{}{"submissionId": sub.ID, "type": sub.Type, "program": sub.Program}).Info("Form submission saved")
	return sub, nil
}

func (f *FormService) List(ctx context.Context, limit int) ([]*models.FormSubmission, error) {
	return f.store.List(ctx, limit)
}
