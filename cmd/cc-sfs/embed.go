package main

import _ "embed"

// embeddedConfig is the configuration baked into the binary. Build scripts
// may overwrite embed_config.yaml with site settings before compiling; an
// external file and the environment still take precedence.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
