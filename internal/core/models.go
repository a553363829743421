package core

import (
	_ "embed"
	"fmt"

	"autolabel-backend/internal/messaging"

	"gopkg.in/yaml.v2"
)

//go:embed models.yaml
var modelsYAML []byte

type modelInfo struct {
	Topic messaging.ModelName
	Batch bool
}

func loadModels(data []byte) (map[string]modelInfo, error) {
	raw := struct {
		Models []struct {
			Name  string `yaml:"name"`
			Topic string `yaml:"topic"`
			Batch bool   `yaml:"batch"`
		} `yaml:"models"`
	}{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]modelInfo, len(raw.Models))
	for _, m := range raw.Models {
		if m.Name == "" || m.Topic == "" {
			return nil, fmt.Errorf("model entry %q is missing a name or topic", m.Name)
		}
		if _, ok := out[m.Name]; ok {
			return nil, fmt.Errorf("model %q is listed twice", m.Name)
		}
		out[m.Name] = modelInfo{Topic: messaging.ModelName(m.Topic), Batch: m.Batch}
	}
	return out, nil
}

// registeredModels maps stored model names onto topic segments.
var registeredModels = func() map[string]modelInfo {
	models, err := loadModels(modelsYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded model registry: %v", err))
	}
	return models
}()
