package policyfile

// PoliciesConfig represents the top-level structure of policies.yaml
type PoliciesConfig struct {
	Policies []PolicyProps `yaml:"policies"`
}

// PolicyProps contains one seed policy definition
type PolicyProps struct {
	Name           string   `yaml:"name"`
	Interfaces     []string `yaml:"interfaces"`
	Domains        []string `yaml:"domains"`
	OptimizeRoutes bool     `yaml:"optimize_routes,omitempty"`
	Disabled       bool     `yaml:"disabled,omitempty"`
}
