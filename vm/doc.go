// Package vm implements the garnet virtual machine.
//
// This package contains:
//   - Tagged value representation and heap object types
//   - Classes, modules, singleton classes and include-classes
//   - The register-machine instruction set and interpreter loop
//   - Catch-handler based rescue, ensure, break and return unwinding
//   - Built-in classes and their native methods
package vm
