package common

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/apex/log"
)

// TaskHandler a handler function which execute a task based on parameters
type TaskHandler func(taskParam interface{}) error

// TaskProcessor processing module for implementing an event loop model
//
// All task params submitted are processed one at a time, in submission order, by a
// single goroutine.
type TaskProcessor interface {
	// Submit submit a new task param for processing. Blocks until the param is accepted
	// into the task buffer, the caller's context ends, or the processor stops.
	Submit(ctxt context.Context, newTaskParam interface{}) error
	// TrySubmit submit a new task param without waiting. Fails if the task buffer is full
	// or the processor stopped.
	TrySubmit(newTaskParam interface{}) error
	// ProcessNewTaskParam process a task param directly on the caller's goroutine
	ProcessNewTaskParam(newTaskParam interface{}) error
	// SetTaskExecutionMap replace the task param type to handler mapping
	SetTaskExecutionMap(newMap map[reflect.Type]TaskHandler) error
	// AddToTaskExecutionMap add one entry to the task param type to handler mapping
	AddToTaskExecutionMap(theType reflect.Type, handler TaskHandler) error
	// StartEventLoop start the event loop goroutine
	StartEventLoop(wg *sync.WaitGroup) error
	// StopEventLoop stop the event loop goroutine
	StopEventLoop() error
}

// taskProcessorImpl implement TaskProcessor
type taskProcessorImpl struct {
	Component
	name             string
	operationContext context.Context
	contextCancel    context.CancelFunc
	newTasks         chan interface{}
	lock             sync.RWMutex
	executionMap     map[reflect.Type]TaskHandler
}

// GetNewTaskProcessorInstance get instance of TaskProcessor
func GetNewTaskProcessorInstance(
	name string, taskBuffer int, ctxt context.Context,
) (TaskProcessor, error) {
	if taskBuffer < 1 {
		return nil, fmt.Errorf("[TP %s] task buffer must be at least 1", name)
	}
	logTags := log.Fields{
		"module": "common", "component": "task-processor", "instance": name,
	}
	optCtxt, cancel := context.WithCancel(ctxt)
	return &taskProcessorImpl{
		Component:        Component{LogTags: logTags},
		name:             name,
		operationContext: optCtxt,
		contextCancel:    cancel,
		newTasks:         make(chan interface{}, taskBuffer),
		executionMap:     make(map[reflect.Type]TaskHandler),
	}, nil
}

// Submit submit a new task parameter for processing
func (p *taskProcessorImpl) Submit(ctxt context.Context, newTaskParam interface{}) error {
	if p.operationContext.Err() != nil {
		return fmt.Errorf("[TP %s] processor stopped", p.name)
	}
	select {
	case p.newTasks <- newTaskParam:
		return nil
	case <-ctxt.Done():
		return ctxt.Err()
	case <-p.operationContext.Done():
		return fmt.Errorf("[TP %s] processor stopped", p.name)
	}
}

// TrySubmit submit a new task parameter if the task buffer has room
func (p *taskProcessorImpl) TrySubmit(newTaskParam interface{}) error {
	if p.operationContext.Err() != nil {
		return fmt.Errorf("[TP %s] processor stopped", p.name)
	}
	select {
	case p.newTasks <- newTaskParam:
		return nil
	default:
		return fmt.Errorf("[TP %s] task buffer full", p.name)
	}
}

// SetTaskExecutionMap update the task param to execution mapping
func (p *taskProcessorImpl) SetTaskExecutionMap(newMap map[reflect.Type]TaskHandler) error {
	log.WithFields(p.LogTags).Debug("Changing task execution mapping")
	p.lock.Lock()
	defer p.lock.Unlock()
	p.executionMap = newMap
	return nil
}

// AddToTaskExecutionMap add a new entry to the task param to execution mapping
func (p *taskProcessorImpl) AddToTaskExecutionMap(theType reflect.Type, handler TaskHandler) error {
	log.WithFields(p.LogTags).Debugf("Appending to task execution mapping for %s", theType)
	p.lock.Lock()
	defer p.lock.Unlock()
	p.executionMap[theType] = handler
	return nil
}

// StopEventLoop stop the task param processing event loop
func (p *taskProcessorImpl) StopEventLoop() error {
	log.WithFields(p.LogTags).Info("Stopping event loop")
	p.contextCancel()
	return nil
}

// ProcessNewTaskParam process a new task param
func (p *taskProcessorImpl) ProcessNewTaskParam(newTaskParam interface{}) error {
	p.lock.RLock()
	theHandler, ok := p.executionMap[reflect.TypeOf(newTaskParam)]
	mapSize := len(p.executionMap)
	p.lock.RUnlock()
	if mapSize == 0 {
		return fmt.Errorf("[TP %s] No task execution mapping set", p.name)
	}
	if !ok {
		return fmt.Errorf(
			"[TP %s] No matching handler found for %s", p.name, reflect.TypeOf(newTaskParam),
		)
	}
	return theHandler(newTaskParam)
}

// StartEventLoop start the event loop
func (p *taskProcessorImpl) StartEventLoop(wg *sync.WaitGroup) error {
	log.WithFields(p.LogTags).Info("Starting event loop")
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer log.WithFields(p.LogTags).Info("Event loop exiting")
		for {
			select {
			case <-p.operationContext.Done():
				return
			case newTaskParam := <-p.newTasks:
				if err := p.ProcessNewTaskParam(newTaskParam); err != nil {
					log.WithError(err).WithFields(p.LogTags).Error("Failed to process new task param")
				}
			}
		}
	}()
	return nil
}
