// Package directory provides implementations of the directory collaborators
// used to resolve authorization policies: a static YAML Inventory, an HTTP
// client for a remote directory service and a DNS TXT key lookup for named
// principals.
package directory
