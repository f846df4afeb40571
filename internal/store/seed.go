package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"zytech/internal/models"
)

// Seed son organizaciones y productos de ejemplo para levantar el store en
// memoria en dev sin base de datos.
type Seed struct {
	Organizations []SeedOrganization `yaml:"organizations"`
}

type SeedOrganization struct {
	ID            string          `yaml:"id"`
	Name          string          `yaml:"name"`
	Vertical      models.Vertical `yaml:"vertical"`
	BotTemplate   string          `yaml:"bot_template"`
	PhoneNumberID string          `yaml:"phone_number_id"`
	Active        *bool           `yaml:"active"`
	CalendarID    string          `yaml:"calendar_id"`
	Address       string          `yaml:"address"`
	BusinessHours string          `yaml:"business_hours"`
	Products      []SeedProduct   `yaml:"products"`
}

type SeedProduct struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Available   *bool   `yaml:"available"`
}

func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no pude leer seed %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("seed %s inválido: %w", path, err)
	}
	for i, o := range s.Organizations {
		if o.ID == "" || o.PhoneNumberID == "" || o.BotTemplate == "" {
			return nil, fmt.Errorf("seed %s: organización #%d necesita id, phone_number_id y bot_template", path, i+1)
		}
		if o.Vertical != "" && !o.Vertical.Valid() {
			return nil, fmt.Errorf("seed %s: vertical desconocido %q", path, o.Vertical)
		}
	}
	return &s, nil
}

// Apply carga el seed en m. Active y Available son true si no se indican.
func (s *Seed) Apply(m *Memory) {
	for _, o := range s.Organizations {
		m.PutOrganization(models.Organization{
			ID:            o.ID,
			Name:          o.Name,
			Vertical:      o.Vertical,
			BotTemplate:   o.BotTemplate,
			PhoneNumberID: o.PhoneNumberID,
			Active:        o.Active == nil || *o.Active,
			CalendarID:    o.CalendarID,
			Address:       o.Address,
			BusinessHours: o.BusinessHours,
		})
		for _, p := range o.Products {
			m.PutProduct(models.Product{
				OrganizationID: o.ID,
				Name:           p.Name,
				Description:    p.Description,
				Price:          p.Price,
				Available:      p.Available == nil || *p.Available,
			})
		}
	}
}
