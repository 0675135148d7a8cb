package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// tokenFile represents the structure of the tokens YAML file.
type tokenFile struct {
	Networks []struct {
		ID     string `yaml:"id"`
		Native struct {
			Symbol   string `yaml:"symbol"`
			Name     string `yaml:"name"`
			Decimals int    `yaml:"decimals"`
		} `yaml:"native"`
		Tokens []struct {
			Address  string `yaml:"address"`
			Symbol   string `yaml:"symbol"`
			Name     string `yaml:"name"`
			Decimals int    `yaml:"decimals"`
		} `yaml:"tokens"`
	} `yaml:"networks"`
}

// Load reads token descriptors from a YAML file. Entries with missing
// required fields are skipped with a warning; an empty result is an error.
func Load(path string, logger *zap.Logger) (*Registry, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file tokenFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var descriptors []TokenDescriptor
	for _, net := range file.Networks {
		if net.ID == "" {
			logger.Warn("Skipping network with empty id")
			continue
		}

		if net.Native.Symbol == "" || net.Native.Decimals < 0 {
			logger.Warn("Skipping network with invalid native asset",
				zap.String("network", net.ID),
				zap.String("symbol", net.Native.Symbol))
		} else {
			descriptors = append(descriptors, TokenDescriptor{
				Network:  net.ID,
				Address:  nil,
				Symbol:   net.Native.Symbol,
				Name:     net.Native.Name,
				Decimals: net.Native.Decimals,
			})
		}

		for _, tok := range net.Tokens {
			if tok.Address == "" || tok.Symbol == "" || tok.Decimals < 0 {
				logger.Warn("Skipping invalid token entry",
					zap.String("network", net.ID),
					zap.String("address", tok.Address),
					zap.String("symbol", tok.Symbol))
				continue
			}
			addr := tok.Address
			descriptors = append(descriptors, TokenDescriptor{
				Network:  net.ID,
				Address:  &addr,
				Symbol:   tok.Symbol,
				Name:     tok.Name,
				Decimals: tok.Decimals,
			})
		}
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no valid tokens loaded")
	}

	logger.Info("Token registry loaded",
		zap.Int("tokens", len(descriptors)),
		zap.Int("networks", len(file.Networks)))
	return New(descriptors), nil
}
