package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Optional lifecycle interfaces. A module implements only those it needs.

// Configurable decodes the module's section of the configuration file.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults and publishes services on the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned configuration without side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work such as listening for HTTP requests.
type Starter interface {
	Start() error
}

// Stopper releases what Start or Provision acquired. Stop runs in
// reverse load order.
type Stopper interface {
	Stop(ctx context.Context) error
}
