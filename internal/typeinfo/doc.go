// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go struct types used as referents.
As much as possible, reflection code is limited to this package. It contains
the logic for extracting information from referent types, naming their tables
and columns, and scanning query results into them.
*/
package typeinfo
