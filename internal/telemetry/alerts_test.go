package telemetry

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertsFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

func loadAlerts(t *testing.T) alertsFile {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
	}
	var cfg alertsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}
	if len(cfg.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}
	return cfg
}

// TestAlertLabels verifies alerts carry a severity and a summary.
func TestAlertLabels(t *testing.T) {
	for _, group := range loadAlerts(t).Groups {
		for _, alert := range group.Rules {
			if alert.Alert == "" {
				continue
			}
			if _, ok := alert.Labels["severity"]; !ok {
				t.Errorf("Alert '%s' missing 'severity' label", alert.Alert)
			}
			if _, ok := alert.Annotations["summary"]; !ok {
				t.Errorf("Alert '%s' missing 'summary' annotation", alert.Alert)
			}
		}
	}
}

// TestAlertsReferenceDeclaredMetrics verifies every slidify_ metric used by an
// alert expression is declared in metrics.go.
func TestAlertsReferenceDeclaredMetrics(t *testing.T) {
	data, err := os.ReadFile("metrics.go")
	if err != nil {
		t.Fatalf("Failed to read metrics.go: %v", err)
	}
	declared := string(data)

	for _, group := range loadAlerts(t).Groups {
		for _, alert := range group.Rules {
			for _, field := range strings.FieldsFunc(alert.Expr, func(r rune) bool {
				return !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
			}) {
				if !strings.HasPrefix(field, "slidify_") {
					continue
				}
				name := strings.TrimSuffix(strings.TrimSuffix(field, "_bucket"), "_count")
				if !strings.Contains(declared, `"`+name+`"`) {
					t.Errorf("Alert '%s' uses undeclared metric %s", alert.Alert, name)
				}
			}
		}
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	if Handler() == nil {
		t.Fatal("nil metrics handler")
	}
	SlideshowViewsTotal.Inc()
}
