package example

var EXPERIMENT_EXAMPLE = `
version: 1
kind: experiment

logging:
  level: INFO

tags: [cnn, mnist, cnn]

framework: tensorflow

environment:
  persistence:
    data: data1
    outputs: outputs1
  secret_refs: [aws-credentials]
  configmap_refs: [config1, config2]
  resources:
    cpu:
      requests: 1
      limits: 2
  replicas:
    n_workers: 5
    n_ps: 1
    default_worker:
      node_selector:
        foo: true
      resources:
        cpu:
          requests: 1
          limits: 2
        memory:
          requests: 256Mi
          limits: 1Gi
      tolerations:
        - key: gpu
          operator: Exists
          effect: NoSchedule
    worker:
      - index: 3
        node_selector:
          foo: false
        tolerations:
          - key: spot
            operator: Equal
            value: "true"
            effect: NoSchedule
    default_ps:
      resources:
        cpu:
          requests: 0.5
          limits: 1

declarations:
  batch_size: 128
  cnn:
    kernels: [64, 32]
    size: [2, 2]
    strides: [1, 1]
  learning_rate: 0.001

model:
  graph:
    input_layers: image
    layers:
      - Conv2D:
          filters: 64
          kernel_size: [3, 3]
          strides: [1, 1]
          activation: relu
          inbound_nodes: image
          tags: tag1
      - for:
          len: "{{ cnn.kernels|length }}"
          do:
            - Conv2D:
                filters: "{{ cnn.kernels[index] }}"
                kernel_size: "{{ cnn.size }}"
                strides: "{{ cnn.strides }}"
                activation: relu
                tags: [tag1]
      - if:
          cond: "32 == {{ cnn.kernels[1] }}"
          do:
            - for:
                len: "{{ cnn.kernels|length }}"
                do:
                  - Conv2D:
                      filters: "{{ cnn.kernels[index] }}"
                      kernel_size: [2, 2]
                      activation: relu
                      inbound_nodes: ["tags.tag1[1]"]
                      tags: [tag2]
          else_do:
            - MaxPooling2D:
                pool_size: [2, 2]
      - Flatten:
          name: flat
          inbound_nodes: tags.tag2
      - Dense:
          name: logits
          units: 10
          activation: softmax
          inbound_nodes: flat
    output_layers: logits
  loss:
    SigmoidCrossEntropy:
      input_layer: image
      output_layer: logits
  optimizer:
    Adam:
      learning_rate: "{{ learning_rate }}"
  metrics:
    - Accuracy
    - Precision:
        top_k: 1
  summaries: [loss, gradients]

train:
  steps: 1000
  data_pipeline:
    TFRecordImagePipeline:
      batch_size: "{{ batch_size }}"
      num_epochs: 1
      shuffle: False
      data_files: ["../data/mnist/mnist_train.tfrecord"]
      meta_data_file: "../data/mnist/meta_data.json"
      feature_processors:
        image:
          input_layers: [image]
          output_layers: [reshap_0]
          layers:
            - Cast:
                dtype: float32
            - Reshape:
                target_shape: [784]

eval:
  data_pipeline:
    TFRecordImagePipeline:
      batch_size: 32
      num_epochs: 1
      shuffle: false
      data_files: ["../data/mnist/mnist_eval.tfrecord"]
      meta_data_file: "../data/mnist/meta_data.json"
`

var JOB_EXAMPLE = `
version: 1
kind: job

tags: [fixtures]

declarations:
  epochs: 10

environment:
  resources:
    gpu:
      requests: 1
      limits: 1

build:
  image: my_image
  build_steps: [pip install -r requirements.txt]
  git: https://github.com/org/repo/tree/dev/jobs/train

run:
  cmd: video_prediction_train --num_epochs={{ epochs }}
`

var GROUP_EXAMPLE = `
version: 1
kind: group

hptuning:
  concurrency: 2
  matrix:
    lr:
      values: [0.01, 0.1]

run:
  cmd: [python, train.py]
`

var NOTEBOOK_EXAMPLE = `
version: 1
kind: notebook

build:
  image: jupyter/tensorflow-notebook
`
