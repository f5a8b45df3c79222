package sqlassets

import _ "embed"

//go:embed schema/contracts.sql
var ContractsSQL string
