// Package vast defines core types shared across subsystems: the source
// union, fetch strategies, pipeline results, collaborator interfaces, and
// the error taxonomy.
package vast
