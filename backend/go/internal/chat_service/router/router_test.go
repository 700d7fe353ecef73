package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		message string
		history int
		want    models.AgentKind
	}{
		{"Je voudrais m'inscrire à la journée portes ouvertes", 0, models.AgentFormFilling},
		{"Voici mon téléphone: 06 12 34 56 78", 0, models.AgentFormFilling},
		{"How do I apply?", 0, models.AgentFormFilling},
		{"Quelles sont les majeures proposées ?", 0, models.AgentRetrieval},
		{"Quels sont les frais de scolarité ?", 0, models.AgentRetrieval},
		{"Qui est le directeur de l'ESILV ?", 0, models.AgentRetrieval},
		{"What are the latest news?", 0, models.AgentRetrieval},
		{"Bonjour !", 0, models.AgentConversation},
		{"Merci beaucoup", 1, models.AgentConversation},
		{"Et pour la deuxième année ?", 2, models.AgentRetrieval},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			history := make([]models.ConversationMessage, tt.history)
			assert.Equal(t, tt.want, Route(tt.message, history))
		})
	}
}
