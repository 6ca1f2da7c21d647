// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package controller hosts the State Store and Execution Manager: the two
components of the workflow engine concerned with run lifecycle rather than
step semantics.

# Subpackages

  - backend: the State Store. RunStore/RunLister/CheckpointStore interfaces
    plus memory and sqlite implementations.
  - manager: the Execution Manager. Owns in-flight runs, drives each one's
    steps through a workflow.Dispatcher, and persists progress via a
    backend.Backend.

An embedder builds a manager.Manager from a backend.Backend and a
workflow.Dispatcher, then calls StartExecution/CancelExecution/
ResumeExecution/GetExecutionStatus/ListExecutions. HTTP/CLI/webhook surfaces
that expose these operations to the outside world are embedder concerns, not
part of this package.
*/
package controller
